package replicast

import (
	"fmt"

	"github.com/replicast/replicast/utils"
)

// The replay engine is registration-table based: each target kind
// declares a Schema of named setters and invokers up front, so replay
// stays a map lookup with no runtime reflection, while keeping the
// dynamic-by-name wire contract.

// PropertySetter assigns a decoded value to one property.
type PropertySetter func(target SyncTarget, value Value) error

// MethodFunc applies one method call with decoded parameters.
type MethodFunc func(target SyncTarget, params []Value) error

// Overload is one registered signature of a method name.
type Overload struct {
	Kinds []Kind
	Fn    MethodFunc
}

// Schema is the member table for one target kind.
type Schema struct {
	kind    string
	props   map[string]PropertySetter
	methods map[string][]Overload
}

func NewSchema(kind string) *Schema {
	return &Schema{
		kind:    kind,
		props:   make(map[string]PropertySetter),
		methods: make(map[string][]Overload),
	}
}

func (s *Schema) Kind() string { return s.kind }

// Property registers a setter; chainable.
func (s *Schema) Property(name string, set PropertySetter) *Schema {
	s.props[name] = set
	return s
}

// Method registers one overload of name; chainable. Register each
// signature separately.
func (s *Schema) Method(name string, kinds []Kind, fn MethodFunc) *Schema {
	s.methods[name] = append(s.methods[name], Overload{Kinds: kinds, Fn: fn})
	return s
}

// Dispatcher re-applies decoded events to resolved targets. Built-in
// kinds go through the schema tables; custom kinds fall through to
// the target's own ApplyCustom. No failure is ever fatal: errors are
// returned for the session to count and log, panics included.
type Dispatcher struct {
	log     utils.Logger
	schemas utils.CMap[string, *Schema]
}

func NewDispatcher(log utils.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

func (d *Dispatcher) RegisterSchema(s *Schema) {
	d.schemas.Store(s.kind, s)
}

// Dispatch applies ev to target. The returned error wraps one of the
// sentinel kinds (ErrSchemaUnknown, ErrMemberNotFound,
// ErrAmbiguousOverload) or the user code's own failure.
func (d *Dispatcher) Dispatch(ev SyncEvent, target SyncTarget) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatcher: recovered panic",
				"event", ev.EventType(), "target", target.SyncID(), "panic", r)
			err = fmt.Errorf("dispatching %q to %q panicked: %v",
				ev.EventType(), target.SyncID(), r)
		}
	}()

	switch e := ev.(type) {
	case *PropertyChanged:
		return d.setProperty(e, target)
	case *MethodInvoked:
		return d.invoke(e, target)
	default:
		if err := target.ApplyCustom(ev); err != nil {
			return fmt.Errorf("custom event %q on %q: %w", ev.EventType(), target.SyncID(), err)
		}
		return nil
	}
}

func (d *Dispatcher) setProperty(e *PropertyChanged, target SyncTarget) error {
	schema, ok := d.schemas.Load(target.SyncKind())
	if !ok {
		return fmt.Errorf("%w: %q", ErrSchemaUnknown, target.SyncKind())
	}
	set, ok := schema.props[e.Name]
	if !ok {
		return fmt.Errorf("%w: property %q on kind %q", ErrMemberNotFound, e.Name, schema.kind)
	}
	if err := set(target, e.Value); err != nil {
		return fmt.Errorf("setting %q on %q: %w", e.Name, target.SyncID(), err)
	}
	return nil
}

// invoke resolves among the registered overloads of a method name:
//
//  1. a single overload is called as-is, whatever its signature;
//  2. with no null parameter, the overload whose kinds match the
//     parameters exactly wins;
//  3. with nulls present, a unique parameter-count match wins; zero
//     matches is not-found, several is the distinct ambiguous error
//     (that one points at an overload design problem at the source).
func (d *Dispatcher) invoke(e *MethodInvoked, target SyncTarget) error {
	schema, ok := d.schemas.Load(target.SyncKind())
	if !ok {
		return fmt.Errorf("%w: %q", ErrSchemaUnknown, target.SyncKind())
	}
	overloads := schema.methods[e.Name]
	if len(overloads) == 0 {
		return fmt.Errorf("%w: method %q on kind %q", ErrMemberNotFound, e.Name, schema.kind)
	}

	var chosen *Overload
	switch {
	case len(overloads) == 1:
		chosen = &overloads[0]
	case !hasNil(e.Params):
		for i := range overloads {
			if kindsMatch(overloads[i].Kinds, e.Params) {
				chosen = &overloads[i]
				break
			}
		}
		if chosen == nil {
			return fmt.Errorf("%w: no overload of %q matches %s",
				ErrMemberNotFound, e.Name, e)
		}
	default:
		count := 0
		for i := range overloads {
			if len(overloads[i].Kinds) == len(e.Params) {
				chosen = &overloads[i]
				count++
			}
		}
		if count == 0 {
			return fmt.Errorf("%w: no overload of %q takes %d parameters",
				ErrMemberNotFound, e.Name, len(e.Params))
		}
		if count > 1 {
			return fmt.Errorf("%w: %d overloads of %q take %d parameters",
				ErrAmbiguousOverload, count, e.Name, len(e.Params))
		}
	}

	if err := chosen.Fn(target, e.Params); err != nil {
		return fmt.Errorf("invoking %q on %q: %w", e.Name, target.SyncID(), err)
	}
	return nil
}

func hasNil(params []Value) bool {
	for _, p := range params {
		if p.IsNil() {
			return true
		}
	}
	return false
}

func kindsMatch(kinds []Kind, params []Value) bool {
	if len(kinds) != len(params) {
		return false
	}
	for i := range kinds {
		if params[i].Kind() != kinds[i] {
			return false
		}
	}
	return true
}
