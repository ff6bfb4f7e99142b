package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Deepreo/cronkit/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.elastic.co/apm/v2/apmtest"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event core.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func jobContext() context.Context {
	return core.WithTaskInfo(context.Background(), core.TaskInfo{
		ID:             uuid.New(),
		Name:           "report",
		CronExpression: "0 0 * * * *",
	})
}

func TestRecover(t *testing.T) {
	job := Recover()(func(ctx context.Context) error {
		panic("unexpected")
	})

	err := job(jobContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected")
}

func TestEvents(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		pub := &recordingPublisher{}
		job := Events(pub)(func(ctx context.Context) error { return nil })

		require.NoError(t, job(jobContext()))
		require.Len(t, pub.events, 1)

		evt, ok := pub.events[0].(*TaskExecuted)
		require.True(t, ok)
		assert.Equal(t, TaskExecutedEventName, evt.EventName())
		assert.Equal(t, "report", evt.Task)
		assert.True(t, evt.Successful)
		assert.Empty(t, evt.Error)
		assert.NotEmpty(t, evt.EventID())
	})

	t.Run("Failure is reported and returned", func(t *testing.T) {
		pub := &recordingPublisher{}
		job := Events(pub)(func(ctx context.Context) error { return errors.New("db down") })

		err := job(jobContext())
		assert.EqualError(t, err, "db down")
		require.Len(t, pub.events, 1)
		evt := pub.events[0].(*TaskExecuted)
		assert.False(t, evt.Successful)
		assert.Equal(t, "db down", evt.Error)
	})

	t.Run("Publish failure does not fail the run", func(t *testing.T) {
		pub := &recordingPublisher{err: errors.New("bus closed")}
		job := Events(pub)(func(ctx context.Context) error { return nil })

		assert.NoError(t, job(jobContext()))
	})
}

func TestTracingPassesResultThrough(t *testing.T) {
	want := errors.New("failed")
	job := Tracing()(func(ctx context.Context) error { return want })
	assert.ErrorIs(t, job(jobContext()), want)

	job = Logging()(Tracing()(func(ctx context.Context) error { return nil }))
	assert.NoError(t, job(jobContext()))
}

func TestAPM(t *testing.T) {
	tracer := apmtest.NewRecordingTracer()
	defer tracer.Close()

	job := APM(tracer.Tracer)(func(ctx context.Context) error { return errors.New("failed") })
	assert.Error(t, job(jobContext()))

	tracer.Flush(nil)
	payloads := tracer.Payloads()
	require.Len(t, payloads.Transactions, 1)
	assert.Equal(t, "report", payloads.Transactions[0].Name)
	assert.Equal(t, "scheduled", payloads.Transactions[0].Type)
	assert.Equal(t, "error", payloads.Transactions[0].Result)
	assert.Len(t, payloads.Errors, 1)
}
