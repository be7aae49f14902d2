package replicast

import (
	"github.com/replicast/replicast/utils"
)

// MaxSyncDepth guards against a missing End call: nesting deeper than
// this is almost certainly a Begin leak, so it gets logged. Purely
// diagnostic, the scope still proceeds.
const MaxSyncDepth = 100

// SurfaceFunc receives the one event a closed scope chain surfaces.
type SurfaceFunc func(targetID string, ev SyncEvent)

// Coalescer collapses nested Begin/End scopes per target so that only
// the outermost scope of a call chain surfaces an event; inner calls
// would retransmit state the outer event already implies. All state is
// owned by the instance, keyed by target id, and must be driven from a
// single goroutine in strict call/return (LIFO) order.
type Coalescer struct {
	log       utils.Logger
	onSurface SurfaceFunc
	scopes    map[string]*scopeState
}

type scopeState struct {
	depth int
	opts  []Options // one entry per open scope, same length as depth
}

func NewCoalescer(log utils.Logger, onSurface SurfaceFunc) *Coalescer {
	return &Coalescer{
		log:       log,
		onSurface: onSurface,
		scopes:    make(map[string]*scopeState),
	}
}

// Depth reports the current nesting depth for a target.
func (c *Coalescer) Depth(targetID string) int {
	if s := c.scopes[targetID]; s != nil {
		return s.depth
	}
	return 0
}

// Begin opens a scope. opts are remembered and assigned to whatever
// event the matching End surfaces.
func (c *Coalescer) Begin(targetID string, opts Options) {
	s := c.scopes[targetID]
	if s == nil {
		s = &scopeState{}
		c.scopes[targetID] = s
	}
	s.depth++
	s.opts = append(s.opts, opts)
	if s.depth > MaxSyncDepth {
		c.log.Warn("coalescer: sync depth over limit, missing End call?",
			"target", targetID, "depth", s.depth)
	}
}

// Cancel unwinds one scope without surfacing anything, for scopes that
// turned out not to change state. Cancel with no open scope is a
// usage error and is ignored.
func (c *Coalescer) Cancel(targetID string) {
	s := c.scopes[targetID]
	if s == nil || s.depth == 0 {
		c.log.Error("coalescer: Cancel without matching Begin", "target", targetID)
		return
	}
	c.pop(targetID, s)
}

// End closes a scope with its resulting event. The event surfaces only
// when this is the outermost scope, or when the scope was opened with
// IgnoreNestingCheck. End with no open scope is a usage error.
func (c *Coalescer) End(targetID string, ev SyncEvent) (surfaced bool) {
	s := c.scopes[targetID]
	if s == nil || s.depth == 0 {
		c.log.Error("coalescer: End without matching Begin",
			"target", targetID, "event", ev.EventType())
		return false
	}
	opts := c.pop(targetID, s)
	ev.SetOptions(opts)
	if s.depth > 0 && !opts.Has(OptIgnoreNestingCheck) {
		return false // an outer scope will speak for this chain
	}
	c.onSurface(targetID, ev)
	return true
}

// EndProperty closes a scope with a property-change event.
func (c *Coalescer) EndProperty(targetID, name string, value Value) bool {
	return c.End(targetID, NewPropertyChanged(name, value))
}

// EndMethod closes a scope with a method-invocation event.
func (c *Coalescer) EndMethod(targetID, name string, params ...Value) bool {
	return c.End(targetID, NewMethodInvoked(name, params...))
}

func (c *Coalescer) pop(targetID string, s *scopeState) Options {
	opts := s.opts[len(s.opts)-1]
	s.opts = s.opts[:len(s.opts)-1]
	s.depth--
	if s.depth == 0 {
		delete(c.scopes, targetID)
	}
	return opts
}
