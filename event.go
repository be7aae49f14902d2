package replicast

import (
	"fmt"
	"strings"

	"github.com/replicast/replicast/protocol"
	"github.com/replicast/replicast/utils"
)

// Options says where a surfaced event should go: over the network, to
// the replay journal, or both (the default). IgnoreNestingCheck lets
// an inner sync scope surface even though an outer scope is open.
type Options uint32

const (
	OptNone               Options = 0
	OptNetwork            Options = 1 << 0
	OptReplay             Options = 1 << 1
	OptGenerateNewFrame   Options = 1 << 2
	OptIgnoreNestingCheck Options = 1 << 3

	OptDefault = OptNetwork | OptReplay
)

func (o Options) Has(flag Options) bool { return o&flag != 0 }

func (o Options) String() string {
	if o == OptNone {
		return "None"
	}
	var parts []string
	for _, f := range []struct {
		opt  Options
		name string
	}{
		{OptNetwork, "Network"},
		{OptReplay, "Replay"},
		{OptGenerateNewFrame, "GenerateNewFrame"},
		{OptIgnoreNestingCheck, "IgnoreNestingCheck"},
	} {
		if o.Has(f.opt) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// SyncEvent is one discrete, replayable state change. Concrete kinds
// serialize themselves symmetrically: ReadBody must accept exactly
// what AppendBody produced under the same protocol version.
type SyncEvent interface {
	EventType() string
	Options() Options
	SetOptions(opts Options)
	AppendBody(into []byte) []byte
	ReadBody(body []byte) error
	fmt.Stringer
}

// EventBase carries the options word for concrete event kinds.
type EventBase struct {
	opts Options
}

func (b *EventBase) Options() Options        { return b.opts }
func (b *EventBase) SetOptions(opts Options) { b.opts = opts }

const (
	EventProperty = "PropertyChanged"
	EventMethod   = "MethodInvoked"

	// BuiltinModule is the module name built-in kinds travel under.
	BuiltinModule = "replicast"
)

// PropertyChanged records one property write on the target.
type PropertyChanged struct {
	EventBase
	Name  string
	Value Value
}

func NewPropertyChanged(name string, value Value) *PropertyChanged {
	ev := &PropertyChanged{Name: name, Value: value}
	ev.SetOptions(OptDefault)
	return ev
}

func (e *PropertyChanged) EventType() string { return EventProperty }

func (e *PropertyChanged) AppendBody(into []byte) []byte {
	into = protocol.Append(into, litString, []byte(e.Name))
	return AppendValue(into, e.Value)
}

func (e *PropertyChanged) ReadBody(body []byte) (err error) {
	name, rest, err := protocol.TakeWary(litString, body)
	if err != nil {
		return fmt.Errorf("%w: property name: %s", ErrBadEnvelope, err)
	}
	e.Name = string(name)
	e.Value, _, err = TakeValue(rest)
	return err
}

func (e *PropertyChanged) String() string {
	return fmt.Sprintf("Property change %s = %s", e.Name, e.Value)
}

// MethodInvoked records one method call with its argument list.
type MethodInvoked struct {
	EventBase
	Name   string
	Params []Value
}

func NewMethodInvoked(name string, params ...Value) *MethodInvoked {
	ev := &MethodInvoked{Name: name, Params: params}
	ev.SetOptions(OptDefault)
	return ev
}

func (e *MethodInvoked) EventType() string { return EventMethod }

func (e *MethodInvoked) AppendBody(into []byte) []byte {
	into = protocol.Append(into, litString, []byte(e.Name))
	return AppendValue(into, List(e.Params...))
}

func (e *MethodInvoked) ReadBody(body []byte) (err error) {
	name, rest, err := protocol.TakeWary(litString, body)
	if err != nil {
		return fmt.Errorf("%w: method name: %s", ErrBadEnvelope, err)
	}
	e.Name = string(name)
	params, _, err := TakeValue(rest)
	if err != nil {
		return err
	}
	if params.Kind() != KindList {
		return fmt.Errorf("%w: method params are not a list", ErrBadEnvelope)
	}
	e.Params = make([]Value, params.Len())
	for i := range e.Params {
		e.Params[i] = params.At(i)
	}
	return nil
}

func (e *MethodInvoked) String() string {
	var b strings.Builder
	b.WriteString("Method call ")
	b.WriteString(e.Name)
	b.WriteByte('(')
	for i, p := range e.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	return b.String()
}

// EventFactory returns a fresh zero-valued event of one kind. It must
// be pure: no side effects, so decode can allocate freely.
type EventFactory func() SyncEvent

type eventReg struct {
	module  string
	factory EventFactory
}

// EventTypes maps wire type names to factories. Built-in kinds are
// preloaded; applications register their custom kinds at startup.
type EventTypes struct {
	types utils.CMap[string, eventReg]
}

func NewEventTypes() *EventTypes {
	et := &EventTypes{}
	_ = et.Register(EventProperty, BuiltinModule, func() SyncEvent { return &PropertyChanged{} })
	_ = et.Register(EventMethod, BuiltinModule, func() SyncEvent { return &MethodInvoked{} })
	return et
}

func (et *EventTypes) Register(name, module string, factory EventFactory) error {
	if _, loaded := et.types.LoadOrStore(name, eventReg{module: module, factory: factory}); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicateType, name)
	}
	return nil
}

// New allocates a zero event of the named kind, reporting its module.
func (et *EventTypes) New(name string) (ev SyncEvent, module string, ok bool) {
	reg, ok := et.types.Load(name)
	if !ok {
		return nil, "", false
	}
	return reg.factory(), reg.module, true
}

func (et *EventTypes) Module(name string) string {
	reg, _ := et.types.Load(name)
	return reg.module
}
