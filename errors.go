// Package replicast implements a state synchronization protocol:
// component state changes are captured as sync events, coalesced
// across nested scopes, encoded into a versioned binary envelope,
// shipped to peers or a journal, and replayed on the receiving side.
package replicast

import "errors"

var (
	ErrVersionUnknown = errors.New("replicast: unknown protocol version")
	ErrTypeUnknown    = errors.New("replicast: unknown event type")
	ErrTargetUnknown  = errors.New("replicast: unknown sync target")
	ErrBadEnvelope    = errors.New("replicast: bad envelope")
	ErrBadValue       = errors.New("replicast: bad value encoding")

	ErrSchemaUnknown     = errors.New("replicast: no schema for target kind")
	ErrMemberNotFound    = errors.New("replicast: member not found")
	ErrAmbiguousOverload = errors.New("replicast: ambiguous method overload")

	ErrDuplicateTarget = errors.New("replicast: target id already registered")
	ErrDuplicateType   = errors.New("replicast: event type already registered")
)
