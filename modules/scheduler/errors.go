package scheduler

import (
	"fmt"

	"github.com/Deepreo/cronkit/errors"
)

const (
	CodeNotInitialized = "SCHEDULER_NOT_INITIALIZED"
	CodeInvalidCron    = "SCHEDULER_INVALID_CRON"
	CodeEngineFailure  = "SCHEDULER_ENGINE_FAILURE"
	CodeAlreadyRunning = "SCHEDULER_ALREADY_RUNNING"
)

var (
	ErrNotInitialized        = errors.New("scheduler not initialized or already shut down")
	ErrInvalidCronExpression = errors.New("invalid cron expression")
	ErrEngineFailure         = errors.New("scheduler engine failure")
	ErrAlreadyRunning        = errors.New("scheduler already running")
)

func notInitialized() error {
	return errors.AppError(ErrNotInitialized).WithCode(CodeNotInitialized)
}

func alreadyRunning() error {
	return errors.AppError(ErrAlreadyRunning).WithCode(CodeAlreadyRunning)
}

func invalidCron(task, expr string, cause error) error {
	return errors.ValidationError(fmt.Errorf("%w %q for task %s: %w", ErrInvalidCronExpression, expr, task, cause)).
		WithCode(CodeInvalidCron).
		WithMetadata("task", task).
		WithMetadata("cron", expr)
}

func engineFailure(op string, cause error) error {
	return errors.InfraError(fmt.Errorf("%w: %s: %w", ErrEngineFailure, op, cause)).
		WithCode(CodeEngineFailure)
}
