package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Deepreo/cronkit/core"
	"github.com/google/uuid"
	"go.elastic.co/apm/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const TaskExecutedEventName = "scheduler.task.executed"

// TaskExecuted is published by the Events middleware after every run.
type TaskExecuted struct {
	ID         string        `json:"id"`
	TaskID     uuid.UUID     `json:"task_id"`
	Task       string        `json:"task"`
	Cron       string        `json:"cron"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	Successful bool          `json:"successful"`
}

func (e TaskExecuted) EventID() string       { return e.ID }
func (e TaskExecuted) EventName() string     { return TaskExecutedEventName }
func (e TaskExecuted) OccurredOn() time.Time { return e.StartedAt }

// Recover converts a panicking task into an error so outer middlewares see it.
func Recover() core.SchedulerMiddleware {
	return func(next core.JobFunc) core.JobFunc {
		return func(ctx context.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task panicked: %v", r)
					core.LoggerFrom(ctx).Debug("recovered task panic", "stack", string(debug.Stack()))
				}
			}()
			return next(ctx)
		}
	}
}

// Logging logs every run at debug level. Failures are logged by the scheduler.
func Logging() core.SchedulerMiddleware {
	return func(next core.JobFunc) core.JobFunc {
		return func(ctx context.Context) error {
			info, _ := core.TaskInfoFrom(ctx)
			logger := core.LoggerFrom(ctx)
			logger.Debug("task starting", "task", info.Name)
			start := time.Now()
			err := next(ctx)
			logger.Debug("task completed", "task", info.Name, "duration", time.Since(start), "failed", err != nil)
			return err
		}
	}
}

// Tracing opens an OpenTelemetry span around every run.
func Tracing() core.SchedulerMiddleware {
	return func(next core.JobFunc) core.JobFunc {
		return func(ctx context.Context) error {
			info, _ := core.TaskInfoFrom(ctx)
			tracer := otel.Tracer("cronkit-scheduler")
			ctx, span := tracer.Start(ctx, "scheduled_task",
				trace.WithAttributes(
					attribute.String("scheduler.task.name", info.Name),
					attribute.String("scheduler.task.id", info.ID.String()),
					attribute.String("scheduler.task.cron", info.CronExpression),
				),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			err := next(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}

// APM reports every run as an Elastic APM transaction. A nil tracer uses
// the process default.
func APM(tracer *apm.Tracer) core.SchedulerMiddleware {
	return func(next core.JobFunc) core.JobFunc {
		return func(ctx context.Context) error {
			t := tracer
			if t == nil {
				t = apm.DefaultTracer()
			}
			info, _ := core.TaskInfoFrom(ctx)
			tx := t.StartTransaction(info.Name, "scheduled")
			defer tx.End()
			ctx = apm.ContextWithTransaction(ctx, tx)

			err := next(ctx)
			if err != nil {
				tx.Result = "error"
				apm.CaptureError(ctx, err).Send()
			} else {
				tx.Result = "success"
			}
			return err
		}
	}
}

// Events publishes a TaskExecuted event after every run. Publishing
// failures are logged and never change the run's result.
func Events(publisher core.EventPublisher) core.SchedulerMiddleware {
	return func(next core.JobFunc) core.JobFunc {
		return func(ctx context.Context) error {
			info, _ := core.TaskInfoFrom(ctx)
			start := time.Now()
			err := next(ctx)

			evt := &TaskExecuted{
				ID:         uuid.NewString(),
				TaskID:     info.ID,
				Task:       info.Name,
				Cron:       info.CronExpression,
				StartedAt:  start,
				Duration:   time.Since(start),
				Successful: err == nil,
			}
			if err != nil {
				evt.Error = err.Error()
			}
			if pubErr := publisher.Publish(ctx, evt); pubErr != nil {
				core.LoggerFrom(ctx).Warn("failed to publish task event", "task", info.Name, "error", pubErr)
			}
			return err
		}
	}
}
