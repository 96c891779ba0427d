// Package api provides the HTTP (echo) and gRPC service implementations for
// the scorekeeper scoring API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/solatis/scorekeeper/internal/core/ai"
	"github.com/solatis/scorekeeper/internal/core/auth"
	"github.com/solatis/scorekeeper/internal/core/metrics"
	"github.com/solatis/scorekeeper/internal/core/store"
	"github.com/solatis/scorekeeper/internal/rules"
	"github.com/solatis/scorekeeper/internal/types"
)

// Chatter answers formula chat messages. Implemented by *ai.Assistant.
type Chatter interface {
	Chat(ctx context.Context, message string, fields []types.PatientField) (ai.ChatReply, error)
}

// Service wires the rules engine and registries into transport handlers.
// Thin orchestration layer delegating to rules, store, ai and auth.
type Service struct {
	engine    *rules.Engine
	store     *store.Store
	assistant Chatter
	auth      *auth.Authenticator
	metrics   *metrics.Collector
	ping      func(context.Context) error
	timeout   time.Duration
	logger    zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithStore enables the department, formula and patient field routes.
func WithStore(s *store.Store) Option {
	return func(svc *Service) { svc.store = s }
}

// WithAssistant enables /chat.
func WithAssistant(c Chatter) Option {
	return func(svc *Service) { svc.assistant = c }
}

// WithAuthenticator guards registry write routes.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(svc *Service) { svc.auth = a }
}

// WithMetrics enables request metrics and the /metrics route.
func WithMetrics(m *metrics.Collector) Option {
	return func(svc *Service) { svc.metrics = m }
}

// WithHealthCheck adds a dependency probe to /healthz.
func WithHealthCheck(ping func(context.Context) error) Option {
	return func(svc *Service) { svc.ping = ping }
}

// WithRequestTimeout bounds each HTTP request.
func WithRequestTimeout(d time.Duration) Option {
	return func(svc *Service) { svc.timeout = d }
}

// NewService creates service instance with dependencies.
func NewService(engine *rules.Engine, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	s := &Service{engine: engine, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler builds the echo instance serving every HTTP route.
func (s *Service) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(RequestID())
	e.Use(Logger(s.logger))
	if s.metrics != nil {
		e.Use(Metrics(s.metrics))
	}
	e.Use(Recovery(s.logger))
	e.Use(RequestTimeout(s.timeout))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, RequestIDHeader, auth.HeaderName},
	}))

	e.GET("/healthz", s.health)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	e.POST("/parse", s.parse)
	e.POST("/calculate", s.calculate)
	e.POST("/chat", s.chat)

	if s.store != nil {
		s.registerRegistry(e)
	}

	return e
}

func (s *Service) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var status int
	var code, msg string

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		code = codeForStatus(status)
		msg = fmt.Sprint(he.Message)
		if he.Internal != nil {
			msg = fmt.Sprintf("%s: %v", msg, he.Internal)
		}
	} else {
		status, code = HTTPStatus(err)
		msg = err.Error()
		if status == http.StatusInternalServerError {
			s.logger.Error().Err(err).Str("request_id", requestID(c)).Msg("internal error")
			msg = "internal server error"
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, ErrorResponse{Error: msg, Code: code})
}

func (s *Service) health(c echo.Context) error {
	if s.ping != nil {
		if err := s.ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
