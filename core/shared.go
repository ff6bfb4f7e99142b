package core

import (
	"fmt"
	"reflect"
)

// SharedContext holds the single application value injected into every
// scheduled task run. It is immutable after construction and may be read
// concurrently by any number of in-flight executions.
type SharedContext struct {
	value any
}

// Cloner is implemented by state types that need a deep copy when a task
// views them. Types without it are copied by plain assignment.
type Cloner[T any] interface {
	Clone() T
}

// NewSharedContext wraps v. A nil v is allowed and matches no task.
func NewSharedContext(v any) *SharedContext {
	return &SharedContext{value: v}
}

// Value returns the wrapped value as is.
func (sc *SharedContext) Value() any {
	if sc == nil {
		return nil
	}
	return sc.value
}

// Type returns the dynamic type of the wrapped value, nil when empty.
func (sc *SharedContext) Type() reflect.Type {
	if sc == nil || sc.value == nil {
		return nil
	}
	return reflect.TypeOf(sc.value)
}

func (sc *SharedContext) String() string {
	if t := sc.Type(); t != nil {
		return fmt.Sprintf("SharedContext(%s)", t)
	}
	return "SharedContext(<nil>)"
}

// View reads the shared value as T without consuming it.
func View[T any](sc *SharedContext) (T, bool) {
	var zero T
	if sc == nil || sc.value == nil {
		return zero, false
	}
	v, ok := sc.value.(T)
	if !ok {
		return zero, false
	}
	// A typed nil pointer matches no task, same as a nil value.
	if rv := reflect.ValueOf(sc.value); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return zero, false
	}
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone(), true
	}
	return v, true
}

// Take extracts a T from a shared *T and returns a copy of the pointee.
// The context stays usable for other tasks.
func Take[T any](sc *SharedContext) (T, bool) {
	var zero T
	if sc == nil || sc.value == nil {
		return zero, false
	}
	p, ok := sc.value.(*T)
	if !ok || p == nil {
		return zero, false
	}
	if c, ok := any(*p).(Cloner[T]); ok {
		return c.Clone(), true
	}
	return *p, true
}
