package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/solatis/scorekeeper/internal/core/config"
)

// HTTPServer manages the echo server lifecycle.
type HTTPServer struct {
	echo   *echo.Echo
	config config.HTTPConfig
	logger zerolog.Logger
}

// NewHTTPServer wraps an echo instance built by api.Service.Handler.
func NewHTTPServer(cfg config.HTTPConfig, e *echo.Echo, logger zerolog.Logger) (*HTTPServer, error) {
	if e == nil {
		return nil, fmt.Errorf("echo instance cannot be nil")
	}
	return &HTTPServer{echo: e, config: cfg, logger: logger}, nil
}

// Start binds the configured address and serves until Shutdown.
func (s *HTTPServer) Start(ctx context.Context) error {
	addr := s.config.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("HTTP server listening")
	return s.Serve(listener)
}

// Serve accepts connections on an existing listener. A clean shutdown
// returns nil.
func (s *HTTPServer) Serve(listener net.Listener) error {
	s.echo.Listener = listener
	err := s.echo.Start("")
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx ends.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
