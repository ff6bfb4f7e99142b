package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Deepreo/cronkit"
	"github.com/Deepreo/cronkit/core"
	"github.com/Deepreo/cronkit/errors"
	"github.com/Deepreo/cronkit/modules/auth"
	"github.com/Deepreo/cronkit/modules/scheduler"
)

const heartbeatKey = "heartbeat"

func healthCheck(ctx context.Context, state *cronkit.AppState) error {
	logger := core.LoggerFrom(ctx)
	if state.DB != nil {
		if err := state.DB.HealthCheck(ctx); err != nil {
			return errors.InfraError(err).WithCode("DATABASE_UNHEALTHY")
		}
	}
	if state.Cache != nil {
		if err := state.Cache.HealthCheck(ctx); err != nil {
			return errors.InfraError(err).WithCode("CACHE_UNHEALTHY")
		}
		now := []byte(time.Now().UTC().Format(time.RFC3339))
		if err := state.Cache.Set(ctx, heartbeatKey, now, time.Hour); err != nil {
			return errors.InfraError(err)
		}
	}
	logger.Debug("health check passed", "database", state.DB != nil, "cache", state.Cache != nil)
	return nil
}

func cleanup(ctx context.Context, state *cronkit.AppState) error {
	if state.Cache == nil {
		return nil
	}
	return state.Cache.Del(ctx, heartbeatKey)
}

type pingRequest struct{}

func (pingRequest) Validate() error { return nil }

type pingResponse struct {
	Name string    `json:"name"`
	Time time.Time `json:"time"`
}

type totpRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

func (r totpRequest) Validate() error {
	if r.Secret == "" || r.Code == "" {
		return errors.New("secret and code are required")
	}
	return nil
}

type totpResponse struct {
	Valid bool `json:"valid"`
}

// verifyTOTP resolves the settings per request, the state is only wired
// once Run has finished building the application.
func verifyTOTP(settings func() *auth.TOTPConfig) core.EndpointFunc[totpRequest, totpResponse] {
	return func(ctx context.Context, req totpRequest) (totpResponse, error) {
		opts := auth.DefaultConfig().TOTP.Options()
		if cfg := settings(); cfg != nil {
			opts = cfg.Options()
		}
		ok, err := auth.VerifyTOTP(req.Secret, req.Code, opts)
		if err != nil {
			return totpResponse{}, err
		}
		return totpResponse{Valid: ok}, nil
	}
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to the configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var app *cronkit.Application
	app = cronkit.New(
		cronkit.WithConfigPath(cfgPath),
		cronkit.WithTask(
			core.Scheduled("*/5 * * * * *", healthCheck, core.WithTaskName("health_check")),
			core.Scheduled("0 0 * * * *", cleanup, core.WithTaskName("cleanup")),
		),
		cronkit.WithSchedulerMiddleware(scheduler.Logging()),
		cronkit.WithRoutes(func(s core.Server) {
			core.RegisterEndpoint(s, "GET", "/api/v1/ping", core.EndpointFunc[pingRequest, pingResponse](
				func(ctx context.Context, _ pingRequest) (pingResponse, error) {
					return pingResponse{Name: app.State().Name, Time: time.Now()}, nil
				}))
			core.RegisterEndpoint(s, "POST", "/api/v1/totp/verify", verifyTOTP(func() *auth.TOTPConfig {
				return app.State().Config.Auth.TOTP
			}))
		}),
	)

	runErr := app.Run(ctx)
	if runErr != nil {
		slog.Error("fatal", "error", runErr)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := app.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
