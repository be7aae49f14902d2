package replicast

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// testActor is the shared guinea pig for dispatch and session tests.
type testActor struct {
	id    string
	life  float64
	speed int64
	score int64
	calls []string // "name/argcount" per applied invocation

	failCustom bool
}

func newActor(id string) *testActor {
	return &testActor{id: id}
}

func (a *testActor) SyncID() string   { return a.id }
func (a *testActor) SyncKind() string { return "actor" }

func (a *testActor) ApplyCustom(ev SyncEvent) error {
	if a.failCustom {
		return errors.New("custom handler unhappy")
	}
	score, ok := ev.(*scoreEvent)
	if !ok {
		return fmt.Errorf("unexpected event kind %s", ev.EventType())
	}
	a.score += score.Delta
	return nil
}

func (a *testActor) SnapshotEvents() []SyncEvent {
	return []SyncEvent{
		NewPropertyChanged("Life", Float(a.life)),
		NewPropertyChanged("Speed", Int(a.speed)),
	}
}

func (a *testActor) called(name string, params []Value) {
	a.calls = append(a.calls, fmt.Sprintf("%s/%d", name, len(params)))
}

func actorSchema() *Schema {
	invoke := func(name string) MethodFunc {
		return func(target SyncTarget, params []Value) error {
			target.(*testActor).called(name, params)
			return nil
		}
	}
	return NewSchema("actor").
		Property("Life", func(target SyncTarget, v Value) error {
			if v.Kind() != KindFloat {
				return fmt.Errorf("Life wants a float, got %s", v)
			}
			target.(*testActor).life = v.Float()
			return nil
		}).
		Property("Speed", func(target SyncTarget, v Value) error {
			if v.Kind() != KindInt {
				return fmt.Errorf("Speed wants an int, got %s", v)
			}
			target.(*testActor).speed = v.Int()
			return nil
		}).
		Property("Cursed", func(SyncTarget, Value) error {
			panic("cursed property")
		}).
		Method("F", nil, invoke("F")).
		Method("F", []Kind{KindInt}, invoke("F")).
		Method("F", []Kind{KindInt, KindInt}, invoke("F")).
		Method("Move", []Kind{KindInt}, invoke("Move")).
		Method("Reset", nil, invoke("Reset")).
		Method("Greet", []Kind{KindString}, invoke("Greet")).
		Method("Greet", []Kind{KindInt}, invoke("Greet")).
		Method("Jump", []Kind{KindFloat}, invoke("Jump")).
		Method("Jump", []Kind{KindFloat, KindFloat}, invoke("Jump"))
}

// scoreEvent is a custom event kind, replayed via ApplyCustom.
type scoreEvent struct {
	EventBase
	Delta int64
}

func (e *scoreEvent) EventType() string { return "ScoreChanged" }

func (e *scoreEvent) AppendBody(into []byte) []byte {
	return AppendValue(into, Int(e.Delta))
}

func (e *scoreEvent) ReadBody(body []byte) error {
	v, _, err := TakeValue(body)
	if err != nil {
		return err
	}
	e.Delta = v.Int()
	return nil
}

func (e *scoreEvent) String() string {
	return fmt.Sprintf("Score change %+d", e.Delta)
}

func registerScoreEvent(t *testing.T, et *EventTypes) {
	t.Helper()
	assert.Nil(t, et.Register("ScoreChanged", "game", func() SyncEvent { return &scoreEvent{} }))
}
