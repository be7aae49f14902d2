package replicast

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/replicast/replicast/protocol"
)

func TestValueRoundTrip(t *testing.T) {
	values := []Value{
		Nil(),
		Bool(true),
		Bool(false),
		Int(-42),
		Uint(1 << 50),
		Float(3.14),
		String("héllo"),
		String(""),
		Bytes([]byte{0, 1, 2}),
		Enum("WeaponState", 3),
		Ref("actor-42"),
		List(Int(1), String("x"), Nil()),
		Map(String("hp"), Float(75), String("name"), String("bob")),
		List(List(Int(1)), Map(Int(2), List())),
	}
	for _, v := range values {
		buf := AppendValue(nil, v)
		got, rest, err := TakeValue(buf)
		assert.Nil(t, err, v.String())
		assert.Equal(t, 0, len(rest), v.String())
		assert.True(t, v.Equal(got), "want %s, got %s", v, got)
	}
}

func TestValueAccessors(t *testing.T) {
	assert.Equal(t, int64(-7), Int(-7).Int())
	assert.Equal(t, uint64(7), Uint(7).Uint())
	assert.Equal(t, 2.5, Float(2.5).Float())
	assert.Equal(t, "a", String("a").Str())
	assert.Equal(t, "actor-42", Ref("actor-42").RefID())
	assert.True(t, Bool(true).Bool())
	assert.True(t, Nil().IsNil())

	e := Enum("Mode", -2)
	assert.Equal(t, "Mode", e.EnumType())
	assert.Equal(t, int64(-2), e.EnumOrdinal())

	l := List(Int(1), Int(2))
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, int64(2), l.At(1).Int())
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "null", Nil().String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "-42", Int(-42).String())
	assert.Equal(t, "75", Float(75).String())
	assert.Equal(t, `"x"`, String("x").String())
	assert.Equal(t, "@actor-42", Ref("actor-42").String())
	assert.Equal(t, "WeaponState(3)", Enum("WeaponState", 3).String())
	assert.Equal(t, `[1, null, "x"]`, List(Int(1), Nil(), String("x")).String())
	assert.Equal(t, `{"hp": 75}`, Map(String("hp"), Int(75)).String())
}

func TestValueDecodeErrors(t *testing.T) {
	_, _, err := TakeValue([]byte{0xff})
	assert.Error(t, err)

	// a map with an odd number of entries is malformed
	body := AppendValue(nil, Int(1))
	buf := protocol.Append(nil, litMap, body)
	_, _, err = TakeValue(buf)
	assert.ErrorIs(t, err, ErrBadValue)
}
