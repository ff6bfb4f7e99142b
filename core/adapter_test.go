package core_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/Deepreo/cronkit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appState struct {
	Name  string
	Hosts []string
}

func (s appState) Clone() appState {
	return appState{Name: s.Name, Hosts: append([]string(nil), s.Hosts...)}
}

type counters struct {
	Calls int
}

func healthCheck(ctx context.Context, st *appState) error {
	return nil
}

func TestView(t *testing.T) {
	t.Run("Pointer held", func(t *testing.T) {
		st := &appState{Name: "api"}
		got, ok := core.View[*appState](core.NewSharedContext(st))
		require.True(t, ok)
		assert.Same(t, st, got)
	})

	t.Run("Cloner is used", func(t *testing.T) {
		st := appState{Name: "api", Hosts: []string{"a"}}
		sc := core.NewSharedContext(st)

		got, ok := core.View[appState](sc)
		require.True(t, ok)
		got.Hosts[0] = "changed"

		again, _ := core.View[appState](sc)
		assert.Equal(t, "a", again.Hosts[0], "viewed copy must not alias the shared value")
	})

	t.Run("Mismatch", func(t *testing.T) {
		_, ok := core.View[*counters](core.NewSharedContext(&appState{}))
		assert.False(t, ok)
		_, ok = core.View[*counters](core.NewSharedContext(nil))
		assert.False(t, ok)
		_, ok = core.View[*counters](nil)
		assert.False(t, ok)
	})

	t.Run("Typed nil pointer", func(t *testing.T) {
		var nilState *appState
		got, ok := core.View[*appState](core.NewSharedContext(nilState))
		assert.False(t, ok)
		assert.Nil(t, got)
	})
}

func TestTake(t *testing.T) {
	st := &counters{Calls: 3}
	sc := core.NewSharedContext(st)

	got, ok := core.Take[counters](sc)
	require.True(t, ok)
	assert.Equal(t, 3, got.Calls)

	got.Calls = 10
	assert.Equal(t, 3, st.Calls, "taken value is a copy")
	assert.Same(t, st, sc.Value(), "shared context stays usable")

	var nilState *counters
	_, ok = core.Take[counters](core.NewSharedContext(nilState))
	assert.False(t, ok)
}

func TestScheduled(t *testing.T) {
	t.Run("Matching context invokes once", func(t *testing.T) {
		shared := core.NewSharedContext(&appState{Name: "api"})
		var calls int
		var seen *appState
		task := core.Scheduled("*/5 * * * * *", func(ctx context.Context, st *appState) error {
			calls++
			seen = st
			return nil
		}, core.WithTaskName("heartbeat"))

		require.NoError(t, task.Execute(context.Background(), shared))
		assert.Equal(t, 1, calls)
		assert.Equal(t, "api", seen.Name)
		assert.Equal(t, "heartbeat", task.TaskName())
		assert.Equal(t, "*/5 * * * * *", task.CronExpression())
	})

	t.Run("Value parameter from pointer context", func(t *testing.T) {
		shared := core.NewSharedContext(&counters{Calls: 7})
		var got counters
		task := core.Scheduled("0 0 * * * *", func(ctx context.Context, c counters) error {
			got = c
			return nil
		})

		require.NoError(t, task.Execute(context.Background(), shared))
		assert.Equal(t, 7, got.Calls)
	})

	t.Run("Unrelated context is a silent skip", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := core.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
		shared := core.NewSharedContext("not the state")
		called := false
		task := core.Scheduled("0 0 * * * *", func(ctx context.Context, st *appState) error {
			called = true
			return nil
		}, core.WithTaskName("cleanup"))

		assert.NoError(t, task.Execute(ctx, shared))
		assert.NoError(t, task.Execute(ctx, shared))
		assert.False(t, called)
		assert.Equal(t, 1, strings.Count(buf.String(), "type mismatch"), "mismatch is logged once per task")
		assert.Contains(t, buf.String(), "cleanup")
	})

	t.Run("Typed nil pointer context is skipped", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := core.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
		var nilState *appState
		shared := core.NewSharedContext(nilState)
		called := false
		task := core.Scheduled("0 0 * * * *", func(ctx context.Context, st *appState) error {
			called = true
			_ = st.Name
			return nil
		}, core.WithTaskName("report"))

		assert.NotPanics(t, func() {
			assert.NoError(t, task.Execute(ctx, shared))
		})
		assert.False(t, called)
		assert.False(t, task.(core.ContextAcceptor).Accepts(shared))
		assert.Contains(t, buf.String(), "type mismatch")
	})

	t.Run("Errors are returned", func(t *testing.T) {
		want := errors.New("query failed")
		task := core.Scheduled("0 0 * * * *", func(ctx context.Context, st *appState) error {
			return want
		})
		assert.ErrorIs(t, task.Execute(context.Background(), core.NewSharedContext(&appState{})), want)
	})

	t.Run("Default name", func(t *testing.T) {
		task := core.Scheduled("*/5 * * * * *", healthCheck)
		assert.Equal(t, "healthCheck", task.TaskName())
	})

	t.Run("Validate and Accepts", func(t *testing.T) {
		task := core.Scheduled[*appState]("0 0 * * * *", nil, core.WithTaskName("nil-fn"))
		v, ok := task.(core.TaskValidator)
		require.True(t, ok)
		assert.Error(t, v.Validate())

		task = core.Scheduled("  ", healthCheck)
		assert.Error(t, task.(core.TaskValidator).Validate())

		task = core.Scheduled("0 0 * * * *", healthCheck)
		assert.NoError(t, task.(core.TaskValidator).Validate())

		acceptor := task.(core.ContextAcceptor)
		assert.True(t, acceptor.Accepts(core.NewSharedContext(&appState{})))
		assert.False(t, acceptor.Accepts(core.NewSharedContext(42)))
	})
}

func TestLoggerFromDefault(t *testing.T) {
	assert.Same(t, slog.Default(), core.LoggerFrom(context.Background()))
}
