package compiler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/statekeep/internal/fsm"
	"github.com/roach88/statekeep/internal/ir"
)

// ActionFactory builds a runtime action from an action's static arguments.
// It rejects bad arguments up front so a machine fails at bind time, not on
// the first event.
type ActionFactory func(args ir.IRObject) (fsm.Action[ir.IRObject], error)

// Registry maps action names used in machine specs to factories.
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ActionFactory
}

// NewRegistry returns a registry holding the built-in actions:
// inc, set, copy, unset, append, require and fail.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]ActionFactory)}
	for name, f := range builtins {
		r.factories[name] = f
	}
	return r
}

// Register adds a custom action. Names are unique; built-ins cannot be
// replaced.
func (r *Registry) Register(name string, f ActionFactory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register action: name and factory are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("register action %q: already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build returns the runtime action for spec.
func (r *Registry) Build(spec ir.ActionSpec) (fsm.Action[ir.IRObject], error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Do]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown action %q", spec.Do)
	}
	action, err := f(spec.Args)
	if err != nil {
		return nil, fmt.Errorf("action %q: %w", spec.Do, err)
	}
	return action, nil
}

var builtins = map[string]ActionFactory{
	"inc":     incAction,
	"set":     setAction,
	"copy":    copyAction,
	"unset":   unsetAction,
	"append":  appendAction,
	"require": requireAction,
	"fail":    failAction,
}

// args wraps an action's arguments for typed access. Every argument read is
// recorded so leftovers can be reported as typos.
type args struct {
	obj  ir.IRObject
	used map[string]bool
}

func newArgs(obj ir.IRObject) *args {
	return &args{obj: obj, used: make(map[string]bool)}
}

func (a *args) str(key string, required bool) (string, error) {
	a.used[key] = true
	v, ok := a.obj[key]
	if !ok {
		if required {
			return "", fmt.Errorf("missing argument %q", key)
		}
		return "", nil
	}
	s, ok := v.(ir.IRString)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return string(s), nil
}

func (a *args) integer(key string, def int64) (int64, error) {
	a.used[key] = true
	v, ok := a.obj[key]
	if !ok {
		return def, nil
	}
	n, ok := v.(ir.IRInt)
	if !ok {
		return 0, fmt.Errorf("argument %q must be an int", key)
	}
	return int64(n), nil
}

func (a *args) value(key string) (ir.IRValue, error) {
	a.used[key] = true
	v, ok := a.obj[key]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	return v, nil
}

// done fails on any argument no accessor asked for.
func (a *args) done() error {
	for _, key := range a.obj.SortedKeys() {
		if !a.used[key] {
			return fmt.Errorf("unexpected argument %q", key)
		}
	}
	return nil
}

// inc adds by (default 1) to an int field. A missing field counts as 0.
func incAction(obj ir.IRObject) (fsm.Action[ir.IRObject], error) {
	a := newArgs(obj)
	field, err := a.str("field", true)
	if err != nil {
		return nil, err
	}
	by, err := a.integer("by", 1)
	if err != nil {
		return nil, err
	}
	if err := a.done(); err != nil {
		return nil, err
	}

	return func(c ir.IRObject, _ ir.Event) (ir.IRObject, error) {
		current := int64(0)
		if v, ok := c[field]; ok {
			n, ok := v.(ir.IRInt)
			if !ok {
				return nil, fmt.Errorf("field %q is not an int", field)
			}
			current = int64(n)
		}
		c[field] = ir.IRInt(current + by)
		return c, nil
	}, nil
}

// set assigns a constant to a field.
func setAction(obj ir.IRObject) (fsm.Action[ir.IRObject], error) {
	a := newArgs(obj)
	field, err := a.str("field", true)
	if err != nil {
		return nil, err
	}
	value, err := a.value("value")
	if err != nil {
		return nil, err
	}
	if err := a.done(); err != nil {
		return nil, err
	}

	return func(c ir.IRObject, _ ir.Event) (ir.IRObject, error) {
		c[field] = ir.CloneValue(value)
		return c, nil
	}, nil
}

// copy assigns an event payload value to a field. from defaults to field.
func copyAction(obj ir.IRObject) (fsm.Action[ir.IRObject], error) {
	a := newArgs(obj)
	field, err := a.str("field", true)
	if err != nil {
		return nil, err
	}
	from, err := a.str("from", false)
	if err != nil {
		return nil, err
	}
	if from == "" {
		from = field
	}
	if err := a.done(); err != nil {
		return nil, err
	}

	return func(c ir.IRObject, ev ir.Event) (ir.IRObject, error) {
		v, ok := ev.Payload[from]
		if !ok {
			return nil, fmt.Errorf("event %s has no payload key %q", ev.Kind, from)
		}
		c[field] = ir.CloneValue(v)
		return c, nil
	}, nil
}

// unset removes a field. Removing a missing field is not an error.
func unsetAction(obj ir.IRObject) (fsm.Action[ir.IRObject], error) {
	a := newArgs(obj)
	field, err := a.str("field", true)
	if err != nil {
		return nil, err
	}
	if err := a.done(); err != nil {
		return nil, err
	}

	return func(c ir.IRObject, _ ir.Event) (ir.IRObject, error) {
		delete(c, field)
		return c, nil
	}, nil
}

// append adds a constant to an array field, creating it if missing.
func appendAction(obj ir.IRObject) (fsm.Action[ir.IRObject], error) {
	a := newArgs(obj)
	field, err := a.str("field", true)
	if err != nil {
		return nil, err
	}
	value, err := a.value("value")
	if err != nil {
		return nil, err
	}
	if err := a.done(); err != nil {
		return nil, err
	}

	return func(c ir.IRObject, _ ir.Event) (ir.IRObject, error) {
		var arr ir.IRArray
		if v, ok := c[field]; ok {
			existing, ok := v.(ir.IRArray)
			if !ok {
				return nil, fmt.Errorf("field %q is not an array", field)
			}
			arr = existing
		}
		c[field] = append(arr, ir.CloneValue(value))
		return c, nil
	}, nil
}

// require fails unless the field is present.
func requireAction(obj ir.IRObject) (fsm.Action[ir.IRObject], error) {
	a := newArgs(obj)
	field, err := a.str("field", true)
	if err != nil {
		return nil, err
	}
	if err := a.done(); err != nil {
		return nil, err
	}

	return func(c ir.IRObject, _ ir.Event) (ir.IRObject, error) {
		if _, ok := c[field]; !ok {
			return nil, fmt.Errorf("required field %q is missing", field)
		}
		return c, nil
	}, nil
}

// fail always fails, rolling the transition back.
func failAction(obj ir.IRObject) (fsm.Action[ir.IRObject], error) {
	a := newArgs(obj)
	message, err := a.str("message", false)
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = "transition refused"
	}
	if err := a.done(); err != nil {
		return nil, err
	}

	return func(ir.IRObject, ir.Event) (ir.IRObject, error) {
		return nil, fmt.Errorf("%s", message)
	}, nil
}
