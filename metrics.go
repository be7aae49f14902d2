package replicast

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Decode/dispatch failure classes used as metric label values.
const (
	FailVersion   = "version"
	FailType      = "type"
	FailTarget    = "target"
	FailPayload   = "payload"
	FailSchema    = "schema"
	FailNotFound  = "not_found"
	FailAmbiguous = "ambiguous"
	FailCustom    = "custom"
)

// Metrics is the session's prometheus surface.
type Metrics struct {
	EncodedEnvelopes prometheus.Counter
	DecodedEnvelopes prometheus.Counter
	GatedEnvelopes   prometheus.Counter
	SurfacedEvents   prometheus.Counter
	CoalescedEvents  prometheus.Counter
	DecodeFailures   *prometheus.CounterVec
	DispatchFailures *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		EncodedEnvelopes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replicast_envelopes_encoded_total",
			Help: "Envelopes encoded for transmission or journaling",
		}),
		DecodedEnvelopes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replicast_envelopes_decoded_total",
			Help: "Envelopes decoded and dispatched successfully",
		}),
		GatedEnvelopes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replicast_envelopes_gated_total",
			Help: "Inbound envelopes dropped while awaiting the initial snapshot",
		}),
		SurfacedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replicast_events_surfaced_total",
			Help: "Sync scopes that surfaced an event",
		}),
		CoalescedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replicast_events_coalesced_total",
			Help: "Nested sync scopes absorbed by an outer scope",
		}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replicast_decode_failures_total",
			Help: "Envelope decode failures by class",
		}, []string{"class"}),
		DispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replicast_dispatch_failures_total",
			Help: "Event dispatch failures by class",
		}, []string{"class"}),
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(m, ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.EncodedEnvelopes
	ch <- m.DecodedEnvelopes
	ch <- m.GatedEnvelopes
	ch <- m.SurfacedEvents
	ch <- m.CoalescedEvents
	m.DecodeFailures.Collect(ch)
	m.DispatchFailures.Collect(ch)
}
