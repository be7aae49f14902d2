package replicast

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/replicast/replicast/utils"
)

// missLogWindow bounds how many distinct unknown ids get remembered
// for warn suppression before old ones age out and may warn again.
const missLogWindow = 512

// Registry holds the live sync targets of a session, keyed by stable
// id. The surrounding lifecycle registers and deregisters; the decode
// path only resolves. A late-joining peer legitimately resolves ids it
// has never seen, so a miss warns once per id (LRU-suppressed) rather
// than flooding the log.
type Registry struct {
	log     utils.Logger
	targets *xsync.MapOf[string, SyncTarget]
	missed  *lru.Cache[string, struct{}]

	// registration order, for deterministic snapshot enumeration
	lock  sync.Mutex
	order []string
}

func NewRegistry(log utils.Logger) *Registry {
	missed, _ := lru.New[string, struct{}](missLogWindow)
	return &Registry{
		log:     log,
		targets: xsync.NewMapOf[string, SyncTarget](),
		missed:  missed,
	}
}

func (r *Registry) Register(target SyncTarget) error {
	id := target.SyncID()
	if _, loaded := r.targets.LoadOrStore(id, target); loaded {
		return fmt.Errorf("%w: %q", ErrDuplicateTarget, id)
	}
	r.lock.Lock()
	r.order = append(r.order, id)
	r.lock.Unlock()
	r.missed.Remove(id)
	return nil
}

func (r *Registry) Deregister(id string) {
	if _, loaded := r.targets.LoadAndDelete(id); !loaded {
		return
	}
	r.lock.Lock()
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.lock.Unlock()
}

// Resolve is a pure lookup; it never mutates target state.
func (r *Registry) Resolve(id string) (SyncTarget, bool) {
	target, ok := r.targets.Load(id)
	if !ok {
		if seen, _ := r.missed.ContainsOrAdd(id, struct{}{}); !seen {
			r.log.Warn("registry: unresolved target id", "id", id)
		}
	}
	return target, ok
}

func (r *Registry) Len() int {
	return r.targets.Size()
}

// EnumerateForSnapshot walks the live targets in registration order.
func (r *Registry) EnumerateForSnapshot(f func(target SyncTarget) bool) {
	r.lock.Lock()
	ids := append([]string(nil), r.order...)
	r.lock.Unlock()
	for _, id := range ids {
		if target, ok := r.targets.Load(id); ok {
			if !f(target) {
				return
			}
		}
	}
}
