// Package server assembles the HTTP surface of the service
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/andestx/rubromatch/config"
	dedeperoutes "github.com/andestx/rubromatch/pkg/routes/dedupe"
	"github.com/andestx/rubromatch/pkg/routes/health"
	matchroutes "github.com/andestx/rubromatch/pkg/routes/match"
)

// Server wraps the echo instance and its lifecycle
type Server struct {
	echo   *echo.Echo
	logger ectologger.Logger
	config config.Config
}

// New builds the HTTP server with middleware and all route groups
func New(cfg config.Config, logger ectologger.Logger, checker *health.Checker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	checker.RegisterRoutes(e)
	matchroutes.Register(e.Group("/api/v1/match"))
	dedeperoutes.Register(e.Group("/api/v1/dedupe"))

	return &Server{
		echo:   e,
		logger: logger,
		config: cfg,
	}
}

// Start begins serving HTTP traffic and blocks until shutdown
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"addr": addr,
	}).Info("HTTP server starting")
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying echo instance for tests
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
