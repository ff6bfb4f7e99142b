package cronkit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Deepreo/cronkit/config"
	"github.com/Deepreo/cronkit/core"
	"github.com/Deepreo/cronkit/errors"
	"github.com/Deepreo/cronkit/logging"
	"github.com/Deepreo/cronkit/modules/auth"
	"github.com/Deepreo/cronkit/modules/cache"
	"github.com/Deepreo/cronkit/modules/database"
	"github.com/Deepreo/cronkit/modules/event"
	"github.com/Deepreo/cronkit/modules/scheduler"
	"github.com/Deepreo/cronkit/modules/servers"
)

// AppState is the shared context value tasks receive as *AppState unless
// WithSharedState replaces it. DB and Cache are nil when disabled.
type AppState struct {
	Name   string
	Config *config.Config
	Logger *slog.Logger
	DB     *database.Database
	Cache  cache.Cache
	Events core.EventBus
}

// Initializer prepares state before the scheduler starts.
type Initializer interface {
	Init(ctx context.Context, state *AppState) error
}

type InitializerFunc func(ctx context.Context, state *AppState) error

func (f InitializerFunc) Init(ctx context.Context, state *AppState) error {
	return f(ctx, state)
}

type Option func(*Application)

func WithConfig(cfg *config.Config) Option {
	return func(app *Application) { app.cfg = cfg }
}

func WithConfigPath(path string) Option {
	return func(app *Application) { app.configPath = path }
}

func WithLogger(logger *slog.Logger) Option {
	return func(app *Application) { app.logger = logger }
}

// WithRoutes registers endpoints once the HTTP server is built. Ignored when
// the server is disabled.
func WithRoutes(fn func(core.Server)) Option {
	return func(app *Application) { app.routes = append(app.routes, fn) }
}

// WithInitializer adds an initializer. They run in reverse order of
// registration.
func WithInitializer(init Initializer) Option {
	return func(app *Application) { app.initializers = append(app.initializers, init) }
}

func WithTask(tasks ...core.ScheduledTask) Option {
	return func(app *Application) { app.tasks = append(app.tasks, tasks...) }
}

func WithSchedulerMiddleware(middleware ...core.SchedulerMiddleware) Option {
	return func(app *Application) { app.middlewares = append(app.middlewares, middleware...) }
}

// WithSharedState hands tasks v instead of the *AppState.
func WithSharedState(v any) Option {
	return func(app *Application) {
		app.shared = v
		app.hasShared = true
	}
}

type Application struct {
	mu sync.Mutex

	cfg          *config.Config
	configPath   string
	logger       *slog.Logger
	routes       []func(core.Server)
	initializers []Initializer
	tasks        []core.ScheduledTask
	middlewares  []core.SchedulerMiddleware
	shared       any
	hasShared    bool

	state     *AppState
	db        *database.Database
	cache     *cache.RedisCache
	eventBus  *event.InMemory
	server    *servers.HttpServer
	scheduler *scheduler.InMemoryScheduler
}

func New(opts ...Option) *Application {
	app := &Application{}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// Run wires every component, starts the scheduler and blocks until ctx is
// done or the HTTP server fails. Call Shutdown afterwards.
func (app *Application) Run(ctx context.Context) error {
	serverErr, err := app.start(ctx)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		return err
	}
}

func (app *Application) start(ctx context.Context) (<-chan error, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.state != nil {
		return nil, errors.AppError(fmt.Errorf("application already started"))
	}

	cfg := app.cfg
	if cfg == nil {
		loaded, err := config.Load(app.configPath)
		if err != nil {
			return nil, errors.InfraError(err)
		}
		cfg = loaded
	}
	logger := app.logger
	if logger == nil {
		logger = logging.New(cfg.Log)
	}
	logger = logger.With("app", cfg.Name)

	state := &AppState{Name: cfg.Name, Config: cfg, Logger: logger}
	app.state = state

	if cfg.Database.Enabled {
		db, err := database.New(ctx, &cfg.Database)
		if err != nil {
			return nil, errors.InfraError(err)
		}
		app.db, state.DB = db, db
		logger.Info("database connected", "host", cfg.Database.Host)
	}
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, &cfg.Cache)
		if err != nil {
			return nil, errors.InfraError(err)
		}
		app.cache, state.Cache = c, c
		logger.Info("cache connected", "addr", cfg.Cache.Addr())
	}

	bus, err := event.NewInMemory(logger)
	if err != nil {
		return nil, errors.InfraError(err)
	}
	app.eventBus, state.Events = bus, bus

	for i := len(app.initializers) - 1; i >= 0; i-- {
		if err := app.initializers[i].Init(ctx, state); err != nil {
			return nil, err
		}
	}

	if cfg.Scheduler.Enabled {
		var shared *core.SharedContext
		if app.hasShared {
			shared = core.NewSharedContext(app.shared)
		} else {
			shared = core.NewSharedContext(state)
		}
		sched, err := scheduler.New(shared,
			scheduler.WithLogger(logger),
			scheduler.WithConfig(&cfg.Scheduler),
		)
		if err != nil {
			return nil, err
		}
		sched.Use(scheduler.Tracing(), scheduler.Events(bus))
		if cfg.Server.Features.ElasticAPM.Enabled {
			sched.Use(scheduler.APM(nil))
		}
		sched.Use(app.middlewares...)
		app.scheduler = sched

		for _, task := range app.tasks {
			if err := sched.RegisterTask(task); err != nil {
				return nil, err
			}
		}
		if err := sched.Start(); err != nil {
			return nil, err
		}
	} else if len(app.tasks) > 0 {
		logger.Warn("scheduler disabled, tasks will not run", "tasks", len(app.tasks))
	}

	go func() {
		if err := bus.Run(ctx); err != nil {
			logger.Error("Event bus failed", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	if !cfg.Server.Enabled {
		return serverErr, nil
	}

	server, err := servers.NewHttpServer(servers.WithConfig(&cfg.Server))
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWT != nil && cfg.Auth.JWT.Enabled {
		provider, err := auth.NewJWTProvider(cfg.Auth.JWT)
		if err != nil {
			return nil, err
		}
		server.Use(auth.RequireBearer(provider))
	}
	for _, fn := range app.routes {
		fn(server)
	}
	app.server = server

	go func() {
		logger.Info("http server listening", "addr", server.Addr())
		serverErr <- server.Run()
	}()
	return serverErr, nil
}

// Shutdown stops the scheduler first so no task starts against a closing
// dependency, then the server, the event bus, the cache and the database.
func (app *Application) Shutdown(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	var errs []error
	if app.scheduler != nil {
		if err := app.scheduler.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if app.server != nil {
		if err := app.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		app.server = nil
	}
	if app.eventBus != nil {
		if err := app.eventBus.Close(); err != nil {
			errs = append(errs, err)
		}
		app.eventBus = nil
	}
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			errs = append(errs, err)
		}
		app.cache = nil
	}
	if app.db != nil {
		app.db.Close()
		app.db = nil
	}
	return errors.Join(errs...)
}

// Scheduler returns the running scheduler, nil before Run or when disabled.
func (app *Application) Scheduler() core.Scheduler {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.scheduler == nil {
		return nil
	}
	return app.scheduler
}

func (app *Application) State() *AppState {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.state
}
