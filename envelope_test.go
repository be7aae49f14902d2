package replicast

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/replicast/replicast/protocol"
	"github.com/replicast/replicast/utils"
)

func testRegistry(t *testing.T, targets ...SyncTarget) *Registry {
	t.Helper()
	reg := NewRegistry(utils.NewDefaultLogger(slog.LevelError))
	for _, target := range targets {
		assert.Nil(t, reg.Register(target))
	}
	return reg
}

func TestEnvelopeRoundTrip(t *testing.T) {
	codec := NewCodec(NewEventTypes())
	actor := newActor("actor-42")
	reg := testRegistry(t, actor)

	events := []SyncEvent{
		NewPropertyChanged("Life", Float(75)),
		NewMethodInvoked("Move", Int(5), Nil(), List(Float(1), Float(2))),
	}
	for _, ev := range events {
		buf := codec.Encode(ev, "actor-42")
		res := codec.Decode(buf, reg)
		assert.Nil(t, res.Err)
		assert.True(t, res.Applicable())
		assert.Equal(t, ev.EventType(), res.TypeName)
		assert.Equal(t, BuiltinModule, res.Module)
		assert.Equal(t, "actor-42", res.TargetID)
		assert.Same(t, actor, res.Target.(*testActor))
		assert.Equal(t, ev.String(), res.Event.String())
	}
}

func TestDecodeUnknownType(t *testing.T) {
	codec := NewCodec(NewEventTypes())
	reg := testRegistry(t)

	buf := protocol.Append(nil, litVersion, protocol.ZipUint64(uint64(ProtocolVersion)))
	buf = protocol.Append(buf, litType, []byte("Frobnicate"))
	buf = protocol.Append(buf, litModule, []byte("game"))
	buf = AppendValue(buf, Ref("actor-1"))
	buf = protocol.Append(buf, litPayload)

	res := codec.Decode(buf, reg)
	assert.Nil(t, res.Event)
	assert.ErrorIs(t, res.Err, ErrTypeUnknown)
	assert.NotEmpty(t, res.Err.Error())
}

func TestDecodeUnknownTarget(t *testing.T) {
	codec := NewCodec(NewEventTypes())
	reg := testRegistry(t) // has never heard of actor-42

	buf := codec.Encode(NewPropertyChanged("Life", Float(75)), "actor-42")
	res := codec.Decode(buf, reg)

	assert.ErrorIs(t, res.Err, ErrTargetUnknown)
	assert.False(t, res.Applicable())
	// the event still decodes fully for diagnostics
	assert.NotNil(t, res.Event)
	assert.Equal(t, "Property change Life = 75", res.Event.String())
}

func TestDecodeBadTargetRefKeepsPayload(t *testing.T) {
	codec := NewCodec(NewEventTypes())
	reg := testRegistry(t)

	buf := protocol.Append(nil, litVersion, protocol.ZipUint64(uint64(ProtocolVersion)))
	buf = protocol.Append(buf, litType, []byte(EventProperty))
	buf = protocol.Append(buf, litModule, []byte(BuiltinModule))
	// well-framed record in the ref position that is not a valid value
	buf = protocol.Append(buf, litBool, protocol.ZipUint64(2))
	buf = protocol.Append(buf, litPayload, NewPropertyChanged("Life", Float(75)).AppendBody(nil))

	res := codec.Decode(buf, reg)
	assert.ErrorIs(t, res.Err, ErrBadEnvelope)
	assert.False(t, res.Applicable())
	// the payload after the bad ref still decodes for diagnostics
	assert.NotNil(t, res.Event)
	assert.Equal(t, "Property change Life = 75", res.Event.String())
}

func TestDecodeBadVersion(t *testing.T) {
	codec := NewCodec(NewEventTypes())
	reg := testRegistry(t)

	buf := protocol.Append(nil, litVersion, protocol.ZipUint64(99))
	buf = protocol.Append(buf, litType, []byte(EventProperty))

	res := codec.Decode(buf, reg)
	assert.Nil(t, res.Event)
	assert.ErrorIs(t, res.Err, ErrVersionUnknown)
}

func TestDecodeCorruptPayload(t *testing.T) {
	codec := NewCodec(NewEventTypes())
	reg := testRegistry(t, newActor("actor-1"))

	buf := protocol.Append(nil, litVersion, protocol.ZipUint64(uint64(ProtocolVersion)))
	buf = protocol.Append(buf, litType, []byte(EventProperty))
	buf = protocol.Append(buf, litModule, []byte(BuiltinModule))
	buf = AppendValue(buf, Ref("actor-1"))
	buf = protocol.Append(buf, litPayload, []byte{0xff, 0xff})

	res := codec.Decode(buf, reg)
	assert.Nil(t, res.Event)
	assert.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, ErrBadEnvelope)
}

func TestDecodeGarbage(t *testing.T) {
	codec := NewCodec(NewEventTypes())
	reg := testRegistry(t)

	for _, buf := range [][]byte{nil, {0xde, 0xad}, []byte("hello")} {
		res := codec.Decode(buf, reg)
		assert.Nil(t, res.Event)
		assert.Error(t, res.Err)
	}
}
