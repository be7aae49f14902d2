package replicast

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/replicast/replicast/utils"
)

func testDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(utils.NewDefaultLogger(slog.LevelError))
	d.RegisterSchema(actorSchema())
	return d
}

func TestDispatchProperty(t *testing.T) {
	d := testDispatcher(t)
	actor := newActor("a1")

	assert.Nil(t, d.Dispatch(NewPropertyChanged("Life", Float(75)), actor))
	assert.Equal(t, 75.0, actor.life)

	assert.Nil(t, d.Dispatch(NewPropertyChanged("Speed", Int(-3)), actor))
	assert.Equal(t, int64(-3), actor.speed)
}

func TestDispatchPropertyFailures(t *testing.T) {
	d := testDispatcher(t)
	actor := newActor("a1")

	err := d.Dispatch(NewPropertyChanged("NoSuch", Int(1)), actor)
	assert.ErrorIs(t, err, ErrMemberNotFound)

	// type mismatch surfaces the setter's error, non-fatally
	err = d.Dispatch(NewPropertyChanged("Life", String("nope")), actor)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMemberNotFound)

	err = d.Dispatch(NewPropertyChanged("Life", Float(1)), unknownKind{newActor("s1")})
	assert.ErrorIs(t, err, ErrSchemaUnknown)
}

// unknownKind wraps a target under an unregistered schema name.
type unknownKind struct{ SyncTarget }

func (unknownKind) SyncKind() string { return "poltergeist" }

func TestOverloadResolution(t *testing.T) {
	d := testDispatcher(t)
	actor := newActor("a1")

	// two non-null ints pick F(int,int) by exact kinds
	assert.Nil(t, d.Dispatch(NewMethodInvoked("F", Int(1), Int(2)), actor))
	assert.Equal(t, []string{"F/2"}, actor.calls)

	// a single registered overload is called whatever the params
	assert.Nil(t, d.Dispatch(NewMethodInvoked("Reset"), actor))
	assert.Equal(t, "Reset/0", actor.calls[len(actor.calls)-1])

	// a null among candidates with differing counts selects by count
	assert.Nil(t, d.Dispatch(NewMethodInvoked("Jump", Nil(), Float(2)), actor))
	assert.Equal(t, "Jump/2", actor.calls[len(actor.calls)-1])

	// a null among two same-count overloads is ambiguous, distinctly so
	err := d.Dispatch(NewMethodInvoked("Greet", Nil()), actor)
	assert.ErrorIs(t, err, ErrAmbiguousOverload)
	assert.NotErrorIs(t, err, ErrMemberNotFound)
}

func TestOverloadNotFound(t *testing.T) {
	d := testDispatcher(t)
	actor := newActor("a1")

	err := d.Dispatch(NewMethodInvoked("NoSuch"), actor)
	assert.ErrorIs(t, err, ErrMemberNotFound)

	// no-null exact match failure
	err = d.Dispatch(NewMethodInvoked("F", String("x")), actor)
	assert.ErrorIs(t, err, ErrMemberNotFound)

	// null params with no count match
	err = d.Dispatch(NewMethodInvoked("Jump", Nil(), Nil(), Nil()), actor)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestDispatchCustom(t *testing.T) {
	d := testDispatcher(t)
	actor := newActor("a1")

	score := &scoreEvent{Delta: 7}
	assert.Nil(t, d.Dispatch(score, actor))
	assert.Equal(t, int64(7), actor.score)

	actor.failCustom = true
	assert.Error(t, d.Dispatch(score, actor))
}

func TestDispatchRecoversPanics(t *testing.T) {
	d := testDispatcher(t)
	actor := newActor("a1")

	assert.NotPanics(t, func() {
		err := d.Dispatch(NewPropertyChanged("Cursed", Int(1)), actor)
		assert.Error(t, err)
	})
}
