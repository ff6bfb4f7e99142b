package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Deepreo/cronkit/core"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const DefaultStopTimeout = 10 * time.Second

// cronParser accepts six-field expressions (seconds first), classic five-field
// ones and descriptors such as "@hourly" or "@every 5s".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron validates expr the same way RegisterTask does.
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	Timezone    string `mapstructure:"timezone"`
	StopTimeout string `mapstructure:"stop_timeout"`
}

type options struct {
	logger      *slog.Logger
	timezone    string
	location    *time.Location
	stopTimeout time.Duration
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

func WithStopTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stopTimeout = d
		}
	}
}

// WithConfig applies the file based settings. Bad values surface from New.
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		if cfg == nil {
			return
		}
		if cfg.Timezone != "" {
			o.timezone = cfg.Timezone
		}
		if cfg.StopTimeout != "" {
			if d, err := time.ParseDuration(cfg.StopTimeout); err == nil && d > 0 {
				o.stopTimeout = d
			}
		}
	}
}

// InMemoryScheduler fires registered tasks through a gocron engine. All
// runs receive the same shared context.
type InMemoryScheduler struct {
	mu          sync.Mutex
	engine      gocron.Scheduler // nil once shut down
	shared      *core.SharedContext
	logger      *slog.Logger
	tasks       []core.TaskDescriptor
	middlewares []core.SchedulerMiddleware

	taskCount atomic.Int64
	running   atomic.Bool
}

var _ core.Scheduler = (*InMemoryScheduler)(nil)

func New(shared *core.SharedContext, opts ...Option) (*InMemoryScheduler, error) {
	o := &options{
		logger:      slog.Default(),
		location:    time.Local,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.timezone != "" {
		loc, err := time.LoadLocation(o.timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", o.timezone, err)
		}
		o.location = loc
	}

	logger := o.logger.With("component", "scheduler")
	engine, err := gocron.NewScheduler(
		gocron.WithLogger(logger.With("engine", "gocron")),
		gocron.WithLocation(o.location),
		gocron.WithStopTimeout(o.stopTimeout),
	)
	if err != nil {
		return nil, engineFailure("create", err)
	}
	if shared == nil {
		shared = core.NewSharedContext(nil)
	}
	return &InMemoryScheduler{
		engine: engine,
		shared: shared,
		logger: logger,
	}, nil
}

// Use appends middlewares. They wrap tasks registered after the call.
func (s *InMemoryScheduler) Use(middleware ...core.SchedulerMiddleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, middleware...)
}

func (s *InMemoryScheduler) applyMiddlewares(fn core.JobFunc) core.JobFunc {
	chain := fn
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		chain = s.middlewares[i](chain)
	}
	return chain
}

func (s *InMemoryScheduler) RegisterTask(task core.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return notInitialized()
	}
	if task == nil {
		return invalidCron("<nil>", "", fmt.Errorf("task is nil"))
	}

	name := task.TaskName()
	expr := task.CronExpression()
	if v, ok := task.(core.TaskValidator); ok {
		if err := v.Validate(); err != nil {
			return invalidCron(name, expr, err)
		}
	}
	if _, err := ParseCron(expr); err != nil {
		return invalidCron(name, expr, err)
	}
	if a, ok := task.(core.ContextAcceptor); ok && !a.Accepts(s.shared) {
		s.logger.Warn("task will never run: shared context type does not match",
			"task", name,
			"shared", s.shared.Type(),
		)
	}

	s.logger.Info("registering task", "task", name, "cron", expr)

	desc := core.TaskDescriptor{
		ID:             uuid.New(),
		Name:           name,
		CronExpression: expr,
		RegisteredAt:   time.Now(),
	}
	info := core.TaskInfo{ID: desc.ID, Name: name, CronExpression: expr}
	shared := s.shared
	logger := s.logger
	run := s.applyMiddlewares(func(ctx context.Context) error {
		return task.Execute(ctx, shared)
	})

	// With seconds enabled gocron parses with the same flags as cronParser,
	// so anything ParseCron accepts is schedulable.
	_, err := s.engine.NewJob(
		gocron.CronJob(expr, true),
		gocron.NewTask(func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("task panicked", "task", info.Name, "panic", r)
				}
			}()
			ctx := core.WithTaskInfo(core.WithLogger(context.Background(), logger), info)
			if err := run(ctx); err != nil {
				logger.Error("task failed", "task", info.Name, "error", err)
			}
		}),
		gocron.WithName(name),
		gocron.WithTags(desc.ID.String()),
	)
	if err != nil {
		return engineFailure("add job", err)
	}

	s.tasks = append(s.tasks, desc)
	s.taskCount.Add(1)
	s.logger.Info("registered task", "task", name, "id", desc.ID)
	return nil
}

// Start starts the engine. With no registered tasks it returns nil and
// leaves the engine idle.
func (s *InMemoryScheduler) Start() error {
	count := s.TaskCount()
	if count == 0 {
		s.logger.Info("scheduler has no tasks")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return notInitialized()
	}
	if s.running.Load() {
		return alreadyRunning()
	}
	s.engine.Start()
	s.running.Store(true)
	s.logger.Info("scheduler started", "tasks", count)
	return nil
}

// Shutdown stops future firings. Runs in flight finish on their own.
// Calling it again, or on a scheduler that never started, is a no-op.
func (s *InMemoryScheduler) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return nil
	}
	engine := s.engine
	s.engine = nil
	s.running.Store(false)
	if err := engine.Shutdown(); err != nil {
		return engineFailure("shutdown", err)
	}
	s.logger.Info("scheduler shut down")
	return nil
}

func (s *InMemoryScheduler) TaskCount() int {
	return int(s.taskCount.Load())
}

func (s *InMemoryScheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *InMemoryScheduler) Tasks() []core.TaskDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.TaskDescriptor, len(s.tasks))
	copy(out, s.tasks)
	return out
}
