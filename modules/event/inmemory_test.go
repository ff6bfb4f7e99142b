package event_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Deepreo/cronkit/core"
	"github.com/Deepreo/cronkit/modules/event"
	"github.com/Deepreo/cronkit/modules/scheduler"
	"github.com/stretchr/testify/require"
)

type taskExecutedHandler struct {
	received chan *scheduler.TaskExecuted
}

func (h *taskExecutedHandler) Handle(ctx context.Context, evt *scheduler.TaskExecuted) error {
	select {
	case h.received <- evt:
	default:
	}
	return nil
}

func runBus(t *testing.T, bus *event.InMemory) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := bus.Run(ctx); err != nil {
			t.Logf("Bus stopped: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		_ = bus.Close()
	})

	select {
	case <-bus.Running():
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for router to start")
	}
}

func TestWatermillEventBus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	bus, err := event.NewInMemory(logger)
	require.NoError(t, err)

	handler := &taskExecutedHandler{received: make(chan *scheduler.TaskExecuted, 1)}
	require.NoError(t, core.SubscribeEvent[*scheduler.TaskExecuted](bus, handler))
	runBus(t, bus)

	sent := &scheduler.TaskExecuted{
		ID:         "123",
		Task:       "heartbeat",
		Cron:       "*/5 * * * * *",
		StartedAt:  time.Now(),
		Successful: true,
	}
	require.NoError(t, bus.Publish(context.Background(), sent))

	select {
	case got := <-handler.received:
		require.Equal(t, sent.Task, got.Task)
		require.Equal(t, sent.Cron, got.Cron)
		require.True(t, got.Successful)
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

func TestSchedulerPublishesToBus(t *testing.T) {
	bus, err := event.NewInMemory(nil)
	require.NoError(t, err)

	handler := &taskExecutedHandler{received: make(chan *scheduler.TaskExecuted, 4)}
	require.NoError(t, core.SubscribeEvent[*scheduler.TaskExecuted](bus, handler))
	runBus(t, bus)

	s, err := scheduler.New(core.NewSharedContext(&struct{ Name string }{Name: "bus"}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	s.Use(scheduler.Events(bus))

	require.NoError(t, s.RegisterTask(core.Scheduled("* * * * * *", func(ctx context.Context, st *struct{ Name string }) error {
		return nil
	}, core.WithTaskName("bus-task"))))
	require.NoError(t, s.Start())

	select {
	case got := <-handler.received:
		require.Equal(t, "bus-task", got.Task)
		require.Equal(t, s.Tasks()[0].ID, got.TaskID)
	case <-time.After(3 * time.Second):
		t.Fatal("Timeout waiting for task event")
	}
}
