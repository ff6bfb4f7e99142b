package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ScheduledTask is the unit of work a Scheduler fires on a cron schedule.
type ScheduledTask interface {
	// TaskName identifies the task in logs. Names are not required to be unique.
	TaskName() string
	// CronExpression returns the schedule. Six fields means seconds resolution.
	CronExpression() string
	// Execute runs the task body with the scheduler's shared context.
	// Failures are reported through the returned error and never retried.
	Execute(ctx context.Context, shared *SharedContext) error
}

// TaskValidator is an optional capability checked before a task reaches the engine.
type TaskValidator interface {
	Validate() error
}

// ContextAcceptor is an optional capability reporting whether a task can
// run against the given shared context.
type ContextAcceptor interface {
	Accepts(shared *SharedContext) bool
}

// TaskDescriptor describes one registration. It never changes after creation.
type TaskDescriptor struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	CronExpression string    `json:"cron_expression"`
	RegisteredAt   time.Time `json:"registered_at"`
}

// TaskInfo is attached to the context of every job run.
type TaskInfo struct {
	ID             uuid.UUID
	Name           string
	CronExpression string
}

type taskInfoKey struct{}
type loggerKey struct{}

func WithTaskInfo(ctx context.Context, info TaskInfo) context.Context {
	return context.WithValue(ctx, taskInfoKey{}, info)
}

func TaskInfoFrom(ctx context.Context) (TaskInfo, bool) {
	info, ok := ctx.Value(taskInfoKey{}).(TaskInfo)
	return info, ok
}

// WithLogger stores the logger task bodies should use.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored by WithLogger, or slog.Default().
func LoggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
