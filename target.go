package replicast

// SyncTarget is anything that can receive a replayed event: it has a
// stable session-wide id, names the schema its members are registered
// under, handles custom event kinds itself, and can describe its full
// state as a sequence of events for late-joining peers.
type SyncTarget interface {
	SyncID() string
	SyncKind() string
	ApplyCustom(ev SyncEvent) error
	SnapshotEvents() []SyncEvent
}

// Resolver maps a stable id to a live target. Lookup only; a missing
// id is a legitimate soft failure (the spawn may not have arrived).
type Resolver interface {
	Resolve(id string) (SyncTarget, bool)
}
