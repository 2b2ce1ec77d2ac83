// Package server provides graceful shutdown for the SCIM service
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Shutdownable represents a component that can be gracefully shut down
type Shutdownable interface {
	Shutdown(ctx context.Context) error
	Name() string
}

// ShutdownFunc wraps a function to implement Shutdownable
type ShutdownFunc struct {
	name string
	fn   func(context.Context) error
}

// NewShutdownFunc creates a Shutdownable from a function
func NewShutdownFunc(name string, fn func(context.Context) error) *ShutdownFunc {
	return &ShutdownFunc{name: name, fn: fn}
}

// Name returns the component name
func (s *ShutdownFunc) Name() string {
	return s.name
}

// Shutdown calls the wrapped function
func (s *ShutdownFunc) Shutdown(ctx context.Context) error {
	return s.fn(ctx)
}

// GracefulShutdown drains the HTTP server and closes its dependencies when a
// termination signal arrives.
type GracefulShutdown struct {
	server          *http.Server
	logger          *zap.Logger
	shutdownables   []Shutdownable
	shutdownTimeout time.Duration
	signalChan      chan os.Signal
}

// Config holds configuration for graceful shutdown
type Config struct {
	Server          *http.Server
	Logger          *zap.Logger
	Shutdownables   []Shutdownable
	ShutdownTimeout time.Duration
}

// New creates a new GracefulShutdown manager
func New(cfg Config) *GracefulShutdown {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	return &GracefulShutdown{
		server:          cfg.Server,
		logger:          cfg.Logger,
		shutdownables:   cfg.Shutdownables,
		shutdownTimeout: cfg.ShutdownTimeout,
		signalChan:      make(chan os.Signal, 1),
	}
}

// ListenAndServe starts the HTTP server, then blocks until a shutdown signal
// is received and the shutdown sequence completes.
func (g *GracefulShutdown) ListenAndServe() error {
	go func() {
		g.logger.Info(fmt.Sprintf("Server listening on %s", g.server.Addr))
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("Server error", zap.Error(err))
		}
	}()

	signal.Notify(g.signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-g.signalChan
	g.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	g.shutdown()
	return nil
}

// shutdown stops accepting new requests, drains in-flight ones, then closes
// the registered components in order.
func (g *GracefulShutdown) shutdown() {
	g.logger.Info("Starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), g.shutdownTimeout)
	defer cancel()

	if g.server != nil {
		if err := g.server.Shutdown(shutdownCtx); err != nil {
			if err == context.DeadlineExceeded {
				g.logger.Warn("Server shutdown timed out, forcing close")
				g.server.Close()
			} else {
				g.logger.Error("Error during server shutdown", zap.Error(err))
			}
		} else {
			g.logger.Info("HTTP server shutdown complete")
		}
	}

	for _, component := range g.shutdownables {
		if err := component.Shutdown(shutdownCtx); err != nil {
			g.logger.Error("Error shutting down component",
				zap.String("component", component.Name()),
				zap.Error(err))
		} else {
			g.logger.Info("Component shutdown complete",
				zap.String("component", component.Name()))
		}
	}

	g.logger.Info("Graceful shutdown complete")
}

// CloseDB is a helper that returns a ShutdownFunc for closing a database
// connection
func CloseDB(db interface{ Close() error }) Shutdownable {
	return NewShutdownFunc("database", func(ctx context.Context) error {
		return db.Close()
	})
}
