// Package server assembles the echo HTTP server with the shared middleware
// chain.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/venuelink/rolodex/pkg/middleware"
)

// Config tunes the HTTP server.
type Config struct {
	AppName             string
	Port                int
	ReadTimeoutSeconds  int
	WriteTimeoutSeconds int
	IdleTimeoutSeconds  int
	AllowOrigins        []string
	AllowMethods        []string
}

// Server wraps the echo instance.
type Server struct {
	echo   *echo.Echo
	cfg    Config
	logger ectologger.Logger
}

// New creates the server with the standard middleware chain installed.
func New(cfg Config, logger ectologger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.Server.ReadTimeout = time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.WriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.IdleTimeoutSeconds) * time.Second

	return &Server{
		echo:   e,
		cfg:    cfg,
		logger: logger,
	}
}

// Echo exposes the underlying echo instance for route registration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Group creates a route group under the given prefix.
func (s *Server) Group(prefix string) *echo.Group {
	return s.echo.Group(prefix)
}

// Start blocks serving HTTP until the server shuts down.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.WithField("addr", addr).Infof("HTTP server listening on %s", addr)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
