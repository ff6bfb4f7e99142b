package core

import (
	"context"
	"errors"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// TaskFunc is the business logic a scheduled task wraps. The state
// parameter is filled from the scheduler's shared context.
type TaskFunc[T any] func(ctx context.Context, state T) error

// TaskOption customizes a task built by Scheduled.
type TaskOption func(*taskOptions)

type taskOptions struct {
	name string
}

// WithTaskName overrides the name derived from the wrapped function.
func WithTaskName(name string) TaskOption {
	return func(o *taskOptions) {
		o.name = name
	}
}

// Scheduled turns fn into a ScheduledTask fired on cronExpr. The wrapper
// resolves the shared context to T on every run:
//
//  1. View: the shared value is a T (cloned when it implements Cloner[T]).
//  2. Take: the shared value is a *T, the pointee is copied.
//  3. Otherwise fn is skipped and the mismatch is logged once.
//
// A mismatch never produces an error, so one misconfigured task cannot
// affect the others.
func Scheduled[T any](cronExpr string, fn func(ctx context.Context, state T) error, opts ...TaskOption) ScheduledTask {
	o := taskOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = funcName(fn)
	}
	return &scheduledTask[T]{
		name:     o.name,
		cronExpr: cronExpr,
		fn:       TaskFunc[T](fn),
	}
}

type scheduledTask[T any] struct {
	name     string
	cronExpr string
	fn       TaskFunc[T]

	mismatch sync.Once
}

func (t *scheduledTask[T]) TaskName() string {
	return t.name
}

func (t *scheduledTask[T]) CronExpression() string {
	return t.cronExpr
}

func (t *scheduledTask[T]) Validate() error {
	if t.fn == nil {
		return errors.New("scheduled task function is nil")
	}
	if strings.TrimSpace(t.cronExpr) == "" {
		return errors.New("scheduled task cron expression is empty")
	}
	if t.name == "" {
		return errors.New("scheduled task name is empty")
	}
	return nil
}

func (t *scheduledTask[T]) Accepts(shared *SharedContext) bool {
	if _, ok := View[T](shared); ok {
		return true
	}
	_, ok := Take[T](shared)
	return ok
}

func (t *scheduledTask[T]) Execute(ctx context.Context, shared *SharedContext) error {
	if state, ok := View[T](shared); ok {
		return t.fn(ctx, state)
	}
	if state, ok := Take[T](shared); ok {
		return t.fn(ctx, state)
	}
	t.mismatch.Do(func() {
		LoggerFrom(ctx).Warn("scheduled task skipped: shared context type mismatch",
			"task", t.name,
			"expected", typeName[T](),
			"actual", shared.Type(),
		)
	})
	return nil
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// funcName returns the short name of fn, e.g. "healthCheck" for
// "github.com/acme/app/jobs.healthCheck".
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
