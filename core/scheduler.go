package core

import (
	"context"
)

// JobFunc is the type-erased run of one scheduled task.
type JobFunc func(ctx context.Context) error

// SchedulerMiddleware wraps a JobFunc to add cross-cutting concerns.
type SchedulerMiddleware func(next JobFunc) JobFunc

// Scheduler owns the registered tasks and the cron engine that fires them.
//
// Tasks are registered before or after Start; once Shutdown has run no
// further registration succeeds. Start with no tasks is a successful no-op.
// Shutdown is idempotent and does not interrupt runs already in flight.
type Scheduler interface {
	RegisterTask(task ScheduledTask) error
	Start() error
	Shutdown() error
	// TaskCount and IsRunning never block on the lifecycle lock.
	TaskCount() int
	IsRunning() bool
	Tasks() []TaskDescriptor
	Use(middleware ...SchedulerMiddleware)
}
