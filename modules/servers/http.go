package servers

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"sync"
	"time"

	"github.com/Deepreo/cronkit/core"
	"github.com/Deepreo/cronkit/errors"
	"github.com/Deepreo/cronkit/modules/auth"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"go.elastic.co/apm/module/apmfiber/v2"
	"go.elastic.co/apm/v2"
)

const (
	DefaultReadTimeout     = 3 * time.Second
	DefaultWriteTimeout    = 3 * time.Second
	DefaultServerHeader    = "Fiber"
	DefaultBodyLimit       = 4 * 1024 * 1024 // 4 MB
	DefaultPort            = "8080"
	DefaultAllowedOrigins  = "*"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultSwaggerUIPath   = "/api/swagger/*"
	DefaultHost            = "0.0.0.0"
	DefaultRateLimitWindow = 60 * time.Second
)

type HttpServer struct {
	app *fiber.App
	cfg *HttpServerConfig

	mu          sync.RWMutex
	middlewares []core.Middleware
}

var _ core.Server = (*HttpServer)(nil)

type HttpServerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ReadTimeout    string `mapstructure:"read_timeout"`
	WriteTimeout   string `mapstructure:"write_timeout"`
	ServerHeader   string `mapstructure:"server_header"`
	BodyLimit      int    `mapstructure:"body_limit"`
	ErrorHandler   fiber.ErrorHandler
	Port           string   `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	AllowedOrigins string   `mapstructure:"allowed_origins"`
	Features       Features `mapstructure:"features"`
}

type Features struct {
	RequestID   RequestID   `mapstructure:"request_id"`
	Proxy       Proxy       `mapstructure:"proxy"`
	RateLimit   RateLimit   `mapstructure:"rate_limit"`
	HealthCheck HealthCheck `mapstructure:"health_check"`
	Etag        Etag        `mapstructure:"etag"`
	ElasticAPM  ElasticAPM  `mapstructure:"elastic_apm"`
	SwaggerUI   SwaggerUI   `mapstructure:"swagger_ui"`
}

type Etag struct {
	Enabled bool `mapstructure:"enabled"`
}

type ElasticAPM struct {
	Enabled bool `mapstructure:"enabled"`
}

type RequestID struct {
	Enabled bool `mapstructure:"enabled"`
}

type Proxy struct {
	Enabled        bool     `mapstructure:"enabled"`
	ProxyHeader    string   `mapstructure:"proxy_header"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type RateLimit struct {
	Enabled    bool   `mapstructure:"enabled"`
	Max        int    `mapstructure:"max"`
	Expiration string `mapstructure:"expiration"`
}

type HealthCheck struct {
	Enabled bool `mapstructure:"enabled"`
}

type SwaggerUI struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	// Token is pre-filled into the UI's bearer authorization.
	Token string `mapstructure:"token"`
}

func WithConfig(cfg *HttpServerConfig) func(*HttpServerConfig) {
	return func(s *HttpServerConfig) {
		if cfg == nil {
			return
		}
		if cfg.ReadTimeout != "" {
			s.ReadTimeout = cfg.ReadTimeout
		}
		if cfg.WriteTimeout != "" {
			s.WriteTimeout = cfg.WriteTimeout
		}
		if cfg.ServerHeader != "" {
			s.ServerHeader = cfg.ServerHeader
		}
		if cfg.BodyLimit != 0 {
			s.BodyLimit = cfg.BodyLimit
		}
		if cfg.ErrorHandler != nil {
			s.ErrorHandler = cfg.ErrorHandler
		}
		if cfg.Port != "" {
			s.Port = cfg.Port
		}
		if cfg.Host != "" {
			s.Host = cfg.Host
		}
		if cfg.AllowedOrigins != "" {
			s.AllowedOrigins = cfg.AllowedOrigins
		}
		s.Enabled = cfg.Enabled
		s.Features = cfg.Features
		if s.Features.SwaggerUI.Path == "" {
			s.Features.SwaggerUI.Path = DefaultSwaggerUIPath
		}
	}
}

func NewHttpServer(options ...func(*HttpServerConfig)) (*HttpServer, error) {
	cfg := &HttpServerConfig{
		ReadTimeout:    DefaultReadTimeout.String(),
		WriteTimeout:   DefaultWriteTimeout.String(),
		ServerHeader:   DefaultServerHeader,
		BodyLimit:      DefaultBodyLimit,
		Port:           DefaultPort,
		AllowedOrigins: DefaultAllowedOrigins,
		Host:           DefaultHost,
	}
	for _, option := range options {
		option(cfg)
	}
	fiberConfig, err := buildFiberConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	server := &HttpServer{
		app: fiber.New(fiberConfig),
		cfg: cfg,
	}
	server.applyMiddlewares()
	return server, nil
}

func (s *HttpServer) applyMiddlewares() {
	s.app.Use(recover.New())
	s.app.Use(helmet.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Accept, Authorization, Content-Type, X-CSRF-Token",
		ExposeHeaders:    "Content-Length, X-Request-ID, Link",
		AllowCredentials: s.cfg.AllowedOrigins != "*",
		MaxAge:           3600,
	}))
	if s.cfg.Features.RequestID.Enabled {
		s.app.Use(requestid.New())
	}
	if s.cfg.Features.RateLimit.Enabled {
		expiration := DefaultRateLimitWindow
		if d, err := time.ParseDuration(s.cfg.Features.RateLimit.Expiration); err == nil && d > 0 {
			expiration = d
		}
		s.app.Use(limiter.New(limiter.Config{
			Max:        s.cfg.Features.RateLimit.Max,
			Expiration: expiration,
		}))
	}
	if s.cfg.Features.HealthCheck.Enabled {
		s.app.Use(healthcheck.New())
	}
	if s.cfg.Features.Etag.Enabled {
		s.app.Use(etag.New())
	}
	if s.cfg.Features.ElasticAPM.Enabled {
		s.app.Use(apmfiber.Middleware())
	}
	if s.cfg.Features.SwaggerUI.Enabled {
		path := s.cfg.Features.SwaggerUI.Path
		if path == "" {
			path = DefaultSwaggerUIPath
		}
		s.app.Get(path, swagger.New(swagger.Config{
			TryItOutEnabled: true,
			OnComplete: template.JS(`
				function() {
					window.ui.preauthorizeApiKey("BearerAuth", "` + template.JSEscapeString(s.cfg.Features.SwaggerUI.Token) + `");
				}`),
		}))
	}
}

func (s *HttpServer) GetApp() *fiber.App {
	return s.app
}

func (s *HttpServer) Addr() string {
	if s.cfg.Features.Proxy.Enabled {
		return ":" + s.cfg.Port
	}
	return net.JoinHostPort(s.cfg.Host, s.cfg.Port)
}

func (s *HttpServer) Run() error {
	return s.app.Listen(s.Addr())
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Use adds handler middlewares. They wrap every registered handler, the
// first one added being the outermost.
func (s *HttpServer) Use(middleware ...core.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, middleware...)
}

func (s *HttpServer) chain(handler core.HandlerFunc) core.HandlerFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := handler
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		chain = s.middlewares[i](chain)
	}
	return chain
}

func buildFiberConfig(cfg *HttpServerConfig) (fiber.Config, error) {
	config := fiber.Config{
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		ServerHeader: DefaultServerHeader,
		BodyLimit:    DefaultBodyLimit,
		// Run owns the process lifecycle, no startup banner.
		DisableStartupMessage: true,
	}
	if cfg.ReadTimeout != "" {
		d, err := time.ParseDuration(cfg.ReadTimeout)
		if err != nil {
			return fiber.Config{}, fmt.Errorf("invalid read_timeout: %s", cfg.ReadTimeout)
		}
		config.ReadTimeout = d
	}
	if cfg.WriteTimeout != "" {
		d, err := time.ParseDuration(cfg.WriteTimeout)
		if err != nil {
			return fiber.Config{}, fmt.Errorf("invalid write_timeout: %s", cfg.WriteTimeout)
		}
		config.WriteTimeout = d
	}
	if cfg.ServerHeader != "" {
		config.ServerHeader = cfg.ServerHeader
	}
	if cfg.BodyLimit != 0 {
		config.BodyLimit = cfg.BodyLimit
	}
	if cfg.Features.Proxy.Enabled {
		if cfg.Features.Proxy.ProxyHeader != "" {
			config.ProxyHeader = cfg.Features.Proxy.ProxyHeader
		}
		if len(cfg.Features.Proxy.TrustedProxies) > 0 {
			config.EnableTrustedProxyCheck = true
			config.TrustedProxies = cfg.Features.Proxy.TrustedProxies
		}
	}
	if cfg.ErrorHandler != nil {
		config.ErrorHandler = cfg.ErrorHandler
	}
	return config, nil
}

func (s *HttpServer) Register(method, path string, handler core.HandlerFunc, reqFactory func() any) {
	genHandler := func(c *fiber.Ctx) error {
		req := reqFactory()

		if err := c.BodyParser(req); err != nil && !errors.Is(fiber.ErrUnprocessableEntity, err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := c.ParamsParser(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := c.QueryParser(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := c.ReqHeaderParser(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if validator, ok := req.(core.Request); ok {
			if err := validator.Validate(); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
		}

		ctx := auth.WithToken(c.UserContext(), c.Get(fiber.HeaderAuthorization))
		var traceID string
		if tx := apm.TransactionFromContext(c.Context()); tx != nil {
			traceID = tx.TraceContext().Trace.String()
			ctx = apm.ContextWithTransaction(ctx, tx)
		}

		res, err := s.chain(handler)(ctx, req)
		if err != nil {
			status, resp := errorResponse(err, traceID)
			return c.Status(status).JSON(resp)
		}
		return c.JSON(core.BaseResponse[any]{Success: true, Data: res})
	}

	s.app.Add(method, path, genHandler)
}

// errorResponse maps an error level to an HTTP status. Internal details
// stay in the logs, the client only gets the trace id.
func errorResponse(err error, traceID string) (int, core.BaseResponse[any]) {
	resp := core.BaseResponse[any]{Success: false}

	extendErr, ok := errors.Extend(err)
	if !ok {
		if errors.Is(fiber.ErrNotFound, err) {
			resp.Error = &core.APIError{Message: "Resource not found"}
			return fiber.StatusNotFound, resp
		}
		resp.Error = &core.APIError{Message: err.Error()}
		return fiber.StatusInternalServerError, resp
	}

	resp.Error = &core.APIError{Code: extendErr.Code, Details: extendErr.Metadata}
	internal := func(msg, detail string, status int) (int, core.BaseResponse[any]) {
		resp.Error.Message = msg
		if resp.Error.Details == nil {
			resp.Error.Details = detail + " please control logs with trace ID: " + traceID
		}
		resp.Error.TraceID = traceID
		return status, resp
	}

	switch extendErr.Level {
	case errors.ERR_INFRASTRUCTURE:
		return internal("Internal Server Error", "Internal server error", fiber.StatusBadGateway)
	case errors.ERR_APPLICATION:
		return internal("Service Unavailable", "Internal application error", fiber.StatusServiceUnavailable)
	case errors.ERR_DOMAIN, errors.ERR_VALIDATION:
		resp.Error.Message = extendErr.Error()
		return fiber.StatusBadRequest, resp
	case errors.ERR_AUTH:
		resp.Error.Message = extendErr.Error()
		return fiber.StatusUnauthorized, resp
	case errors.ERR_PERMISSION:
		resp.Error.Message = extendErr.Error()
		return fiber.StatusForbidden, resp
	default:
		return internal("Internal Server Error", "Unknown error", fiber.StatusInternalServerError)
	}
}
