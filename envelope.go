package replicast

import (
	"errors"
	"fmt"

	"github.com/replicast/replicast/protocol"
)

// ProtocolVersion gates the interpretation of every field after the
// leading version record. Decoders reject anything newer than what
// they know.
const ProtocolVersion uint16 = 1

// Envelope record types, in wire order: version, event type name,
// module name, target reference, payload.
const (
	litVersion = 'V'
	litType    = 'T'
	litModule  = 'M'
	litPayload = 'P'
)

// Codec encodes and decodes event envelopes. It is stateless apart
// from the event type table, so one instance serves a whole session.
type Codec struct {
	Types *EventTypes
}

func NewCodec(types *EventTypes) *Codec {
	return &Codec{Types: types}
}

// Encode serializes ev addressed to the given target id. It cannot
// fail: every reachable Value kind is encodable by construction, and
// an unregistered event type merely travels with an empty module name.
func (c *Codec) Encode(ev SyncEvent, targetID string) []byte {
	buf := protocol.Append(nil, litVersion, protocol.ZipUint64(uint64(ProtocolVersion)))
	buf = protocol.Append(buf, litType, []byte(ev.EventType()))
	buf = protocol.Append(buf, litModule, []byte(c.Types.Module(ev.EventType())))
	buf = AppendValue(buf, Ref(targetID))
	return protocol.Append(buf, litPayload, ev.AppendBody(nil))
}

// DecodeResult carries whatever Decode could reconstruct. Err is nil
// only when the event decoded fully and the target resolved; a
// non-nil Err may still come with a populated Event, kept for its
// diagnostic String().
type DecodeResult struct {
	Event    SyncEvent
	TypeName string
	Module   string
	TargetID string
	Target   SyncTarget
	Err      error
}

func (r *DecodeResult) Applicable() bool {
	return r.Err == nil && r.Event != nil && r.Target != nil
}

// Decode parses one envelope. Failure classification:
//
//   - unknown version or unknown event type: hard failure, no event;
//   - known type but unresolvable target: the payload is still
//     decoded and returned alongside the error;
//   - payload corruption (including a panicking ReadBody): converted
//     to an error carrying the partial event's rendering.
func (c *Codec) Decode(data []byte, resolver Resolver) (res DecodeResult) {
	vbody, rest, err := protocol.TakeWary(litVersion, data)
	if err != nil {
		res.Err = fmt.Errorf("%w: version record: %s", ErrBadEnvelope, err)
		return
	}
	version := protocol.UnzipUint64(vbody)
	if version == 0 || version > uint64(ProtocolVersion) {
		res.Err = fmt.Errorf("%w: %d", ErrVersionUnknown, version)
		return
	}

	tname, rest, err := protocol.TakeWary(litType, rest)
	if err != nil {
		res.Err = fmt.Errorf("%w: type record: %s", ErrBadEnvelope, err)
		return
	}
	res.TypeName = string(tname)
	mname, rest, err := protocol.TakeWary(litModule, rest)
	if err != nil {
		res.Err = fmt.Errorf("%w: module record: %s", ErrBadEnvelope, err)
		return
	}
	res.Module = string(mname)

	ev, _, ok := c.Types.New(res.TypeName)
	if !ok {
		res.Err = fmt.Errorf("%w: %q (module %q)", ErrTypeUnknown, res.TypeName, res.Module)
		return
	}

	// Target resolution failure does not stop the decode: the event
	// is still materialized so it can be rendered for diagnostics.
	var soft error
	ref, tail, err := TakeValue(rest)
	switch {
	case err != nil:
		soft = fmt.Errorf("%w: target ref: %s", ErrBadEnvelope, err)
		// a semantically bad ref can still be a well-framed record;
		// skip it so the payload survives for diagnostics (a broken
		// frame loses the rest of the envelope, nothing to do there)
		if _, _, skipped, serr := protocol.TakeAnyWary(rest); serr == nil {
			tail = skipped
		}
	case ref.Kind() != KindRef:
		soft = fmt.Errorf("%w: target ref is %s", ErrBadEnvelope, ref)
	default:
		res.TargetID = ref.RefID()
		if target, found := resolver.Resolve(res.TargetID); found {
			res.Target = target
		} else {
			soft = fmt.Errorf("%w: %q", ErrTargetUnknown, res.TargetID)
		}
	}
	rest = tail

	pbody, _, err := protocol.TakeWary(litPayload, rest)
	if err != nil {
		res.Err = errors.Join(soft, fmt.Errorf("%w: payload record: %s", ErrBadEnvelope, err))
		return
	}
	if err = readBody(ev, pbody); err != nil {
		res.Err = errors.Join(soft, fmt.Errorf("%w; partial event: %s", err, safeString(ev)))
		return
	}
	res.Event = ev
	res.Err = soft
	return
}

// readBody shields the codec from a panicking ReadBody; custom event
// kinds run user code here.
func readBody(ev SyncEvent, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: payload of %q panicked: %v", ErrBadEnvelope, ev.EventType(), r)
		}
	}()
	if err = ev.ReadBody(body); err != nil {
		err = fmt.Errorf("decoding %q payload: %w", ev.EventType(), err)
	}
	return
}

// safeString renders an event that may be half-populated.
func safeString(ev SyncEvent) (s string) {
	defer func() {
		if recover() != nil {
			s = "<unrenderable " + ev.EventType() + ">"
		}
	}()
	return ev.String()
}
