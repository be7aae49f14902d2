package replicast

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/replicast/replicast/protocol"
	"github.com/replicast/replicast/utils"
)

// PeerQueueLimit bounds the per-peer outbound batch queue.
const PeerQueueLimit = 1 << 12

// Recorder persists encoded envelopes for replay; the journal package
// provides the pebble-backed implementation.
type Recorder interface {
	Append(envelope []byte) (seq uint64, err error)
}

// Session wires the core together: business logic opens scopes through
// the coalescer, surfaced events are encoded and fanned out to peers
// (and the recorder), and inbound buffers are decoded, resolved and
// replayed. Scope calls are single-threaded by contract; the inbound
// path may run on transport goroutines.
type Session struct {
	log     utils.Logger
	metrics *Metrics

	codec *Codec
	coal  *Coalescer
	disp  *Dispatcher
	reg   *Registry

	recorder Recorder
	peers    utils.CMap[string, *peerLink]

	// inbound gating for late joiners: drop deltas that predate the
	// initial full-state snapshot
	gated          atomic.Bool
	snapshotLoaded atomic.Bool
}

func NewSession(log utils.Logger, types *EventTypes) *Session {
	s := &Session{
		log:     log,
		metrics: NewMetrics(),
		codec:   NewCodec(types),
		disp:    NewDispatcher(log),
		reg:     NewRegistry(log),
	}
	s.coal = NewCoalescer(log, s.surface)
	return s
}

func (s *Session) Registry() *Registry     { return s.reg }
func (s *Session) Dispatcher() *Dispatcher { return s.disp }
func (s *Session) Codec() *Codec           { return s.codec }
func (s *Session) Metrics() *Metrics       { return s.metrics }

// SetRecorder attaches a replay recorder; events whose options carry
// OptReplay get appended to it on surfacing.
func (s *Session) SetRecorder(rec Recorder) { s.recorder = rec }

// Gate makes the inbound path drop envelopes until the initial
// snapshot has been loaded.
func (s *Session) Gate() { s.gated.Store(true) }

func (s *Session) SnapshotLoaded() bool { return s.snapshotLoaded.Load() }

// Scope API, delegating to the coalescer.

func (s *Session) BeginSync(target SyncTarget) { s.coal.Begin(target.SyncID(), OptDefault) }

func (s *Session) BeginSyncOpts(target SyncTarget, opts Options) {
	s.coal.Begin(target.SyncID(), opts)
}

func (s *Session) CancelSync(target SyncTarget) { s.coal.Cancel(target.SyncID()) }

func (s *Session) EndSyncProperty(target SyncTarget, name string, value Value) {
	s.track(s.coal.EndProperty(target.SyncID(), name, value))
}

func (s *Session) EndSyncMethod(target SyncTarget, name string, params ...Value) {
	s.track(s.coal.EndMethod(target.SyncID(), name, params...))
}

func (s *Session) EndSync(target SyncTarget, ev SyncEvent) {
	s.track(s.coal.End(target.SyncID(), ev))
}

func (s *Session) track(surfaced bool) {
	if !surfaced {
		s.metrics.CoalescedEvents.Inc()
	}
}

// surface is the coalescer callback: encode once, then fan out.
func (s *Session) surface(targetID string, ev SyncEvent) {
	s.metrics.SurfacedEvents.Inc()
	buf := s.codec.Encode(ev, targetID)
	s.metrics.EncodedEnvelopes.Inc()

	if ev.Options().Has(OptReplay) && s.recorder != nil {
		if _, err := s.recorder.Append(buf); err != nil {
			s.log.Error("session: journal append failed", "target", targetID, "err", err)
		}
	}
	if ev.Options().Has(OptNetwork) {
		s.Broadcast(protocol.Records{buf}, "")
	}
}

// Broadcast queues a batch to every connected peer but except.
func (s *Session) Broadcast(recs protocol.Records, except string) {
	s.peers.Range(func(name string, link *peerLink) bool {
		if name == except {
			return true
		}
		if err := link.queue.Drain(context.Background(), recs); err != nil {
			s.log.Warn("session: dropping batch for peer", "peer", name, "err", err)
		}
		return true
	})
}

// Drain is the inbound path; the transport hands over whole decoded
// record buffers. One malformed or inapplicable envelope never stops
// the batch, so Drain only fails on queue-level conditions.
func (s *Session) Drain(ctx context.Context, recs protocol.Records) error {
	for _, rec := range recs {
		if s.gated.Load() && !s.snapshotLoaded.Load() {
			s.metrics.GatedEnvelopes.Inc()
			continue
		}
		s.apply(ctx, rec)
	}
	return nil
}

func (s *Session) apply(ctx context.Context, envelope []byte) {
	res := s.codec.Decode(envelope, s.reg)
	if res.Err != nil {
		s.metrics.DecodeFailures.WithLabelValues(decodeFailClass(res.Err)).Inc()
		if res.Event != nil {
			s.log.WarnCtx(ctx, "session: undecodable or unappliable envelope",
				"type", res.TypeName, "target", res.TargetID,
				"event", safeString(res.Event), "err", res.Err)
		} else {
			s.log.WarnCtx(ctx, "session: envelope dropped",
				"type", res.TypeName, "err", res.Err)
		}
		return
	}
	if err := s.disp.Dispatch(res.Event, res.Target); err != nil {
		s.metrics.DispatchFailures.WithLabelValues(dispatchFailClass(err)).Inc()
		s.log.WarnCtx(ctx, "session: dispatch failed",
			"target", res.TargetID, "event", safeString(res.Event), "err", err)
		return
	}
	s.metrics.DecodedEnvelopes.Inc()
}

func decodeFailClass(err error) string {
	switch {
	case errors.Is(err, ErrVersionUnknown):
		return FailVersion
	case errors.Is(err, ErrTypeUnknown):
		return FailType
	case errors.Is(err, ErrTargetUnknown):
		return FailTarget
	default:
		return FailPayload
	}
}

func dispatchFailClass(err error) string {
	switch {
	case errors.Is(err, ErrSchemaUnknown):
		return FailSchema
	case errors.Is(err, ErrAmbiguousOverload):
		return FailAmbiguous
	case errors.Is(err, ErrMemberNotFound):
		return FailNotFound
	default:
		return FailCustom
	}
}

// Snapshot encodes the full state of every registered target, in
// registration order, as a replayable envelope sequence for a joining
// peer.
func (s *Session) Snapshot() (recs protocol.Records) {
	s.reg.EnumerateForSnapshot(func(target SyncTarget) bool {
		for _, ev := range target.SnapshotEvents() {
			ev.SetOptions(OptDefault)
			recs = append(recs, s.codec.Encode(ev, target.SyncID()))
			s.metrics.EncodedEnvelopes.Inc()
		}
		return true
	})
	return
}

// LoadSnapshot replays a snapshot in order, bypassing the gate, then
// opens the gate for live deltas.
func (s *Session) LoadSnapshot(ctx context.Context, recs protocol.Records) {
	for _, rec := range recs {
		s.apply(ctx, rec)
	}
	s.snapshotLoaded.Store(true)
}

// Peer plumbing: these two implement the transport's install/destroy
// callbacks, so a Session plugs directly into protocol.NewNet or a
// protocol.WSGate.

type peerLink struct {
	name    string
	session *Session
	queue   *utils.FDQueue[protocol.Records]
}

func (l *peerLink) TraceID() string { return l.name }

func (l *peerLink) Feed(ctx context.Context) (protocol.Records, error) {
	return l.queue.Feed(ctx)
}

func (l *peerLink) Drain(ctx context.Context, recs protocol.Records) error {
	ctx = utils.WithDefaultArgs(ctx, "peer", l.name)
	return l.session.Drain(ctx, recs)
}

func (l *peerLink) Close() error { return l.queue.Close() }

func (s *Session) InstallPeer(name string) protocol.FeedDrainCloserTraced {
	link := &peerLink{
		name:    name,
		session: s,
		queue:   utils.NewFDQueue[protocol.Records](PeerQueueLimit),
	}
	s.peers.Store(name, link)
	s.log.Info("session: peer installed", "peer", name)
	return link
}

func (s *Session) DestroyPeer(name string, _ protocol.Traced) {
	if link, ok := s.peers.Load(name); ok {
		_ = link.Close()
		s.peers.Delete(name)
	}
	s.log.Info("session: peer destroyed", "peer", name)
}
