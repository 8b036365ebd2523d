// Package server provides the HTTP API for recalld.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/linkgraph"
	"github.com/fyrsmithlabs/recalld/internal/orchestrator"
	"github.com/fyrsmithlabs/recalld/internal/queue"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"github.com/fyrsmithlabs/recalld/internal/validate"
)

// Server exposes the injection engine over HTTP.
type Server struct {
	echo         *echo.Echo
	orchestrator *orchestrator.Orchestrator
	links        *linkgraph.Service
	drainer      *queue.Drainer
	validator    *validate.Validator
	store        store.Store
	logger       *zap.Logger
	cfg          config.ServerConfig
}

// New wires the HTTP surface. The logger is required for request
// tracking; everything else must already be constructed.
func New(
	cfg config.ServerConfig,
	o *orchestrator.Orchestrator,
	links *linkgraph.Service,
	drainer *queue.Drainer,
	st store.Store,
	logger *zap.Logger,
) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:         e,
		orchestrator: o,
		links:        links,
		drainer:      drainer,
		validator:    validate.New(logger),
		store:        st,
		logger:       logger,
		cfg:          cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/inject", s.handleInject)
	v1.POST("/feedback", s.handleFeedback)
	v1.POST("/validate", s.handleValidate)
	v1.POST("/learnings", s.handleEnqueueLearnings)
	v1.POST("/queue/drain", s.handleDrain)
	v1.GET("/contradictions/:project", s.handleContradictions)
	v1.GET("/pending/:project", s.handleListPending)
	v1.POST("/pending/:id/approve", s.handleApprovePending)
	v1.POST("/pending/:id/reject", s.handleRejectPending)
}

// Start begins serving and blocks until shutdown or listen failure.
func (s *Server) Start() error {
	s.echo.Server.ReadTimeout = s.cfg.ReadTimeout.Duration()
	s.echo.Server.WriteTimeout = s.cfg.WriteTimeout.Duration()
	s.logger.Info("starting http server", zap.String("addr", s.cfg.Addr))
	return s.echo.Start(s.cfg.Addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
