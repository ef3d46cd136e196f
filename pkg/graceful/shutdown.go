// Package graceful drains the HTTP server on SIGINT/SIGTERM and then runs
// the registered teardown hooks in registration order.
package graceful

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poolcard/poolcard_service/pkg/logger"
)

// Shutdowner is implemented by background jobs that stop on demand
type Shutdowner interface {
	Shutdown(timeout time.Duration) error
}

type hook struct {
	name string
	stop func(ctx context.Context) error
}

// ShutdownManager coordinates teardown. Register jobs before resources:
// hooks run in registration order after in-flight requests drain, so a job
// stops before the connections it depends on close.
type ShutdownManager struct {
	server  *http.Server
	timeout time.Duration
	hooks   []hook
	log     *logger.Logger
}

// NewShutdownManager creates the manager with a 30s drain deadline
func NewShutdownManager(server *http.Server, log *logger.Logger) *ShutdownManager {
	return &ShutdownManager{server: server, timeout: 30 * time.Second, log: log}
}

// Register adds a background job to stop
func (m *ShutdownManager) Register(name string, s Shutdowner) {
	m.hooks = append(m.hooks, hook{name: name, stop: func(context.Context) error {
		return s.Shutdown(m.timeout)
	}})
}

// RegisterCloser adds a resource to release
func (m *ShutdownManager) RegisterCloser(name string, close func() error) {
	m.hooks = append(m.hooks, hook{name: name, stop: func(context.Context) error {
		return close()
	}})
}

// RegisterContext adds a teardown step that honors the drain deadline
func (m *ShutdownManager) RegisterContext(name string, stop func(ctx context.Context) error) {
	m.hooks = append(m.hooks, hook{name: name, stop: stop})
}

// WaitForShutdown blocks until a termination signal arrives, drains the
// server, then runs every hook. Hook failures are logged, never fatal.
func (m *ShutdownManager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	m.log.Info("shutting down", "drain_timeout", m.timeout)

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.server.Shutdown(ctx); err != nil {
		m.log.Error("server forced shutdown", "error", err)
	}

	for _, h := range m.hooks {
		if err := h.stop(ctx); err != nil {
			m.log.Warn("shutdown hook failed", "hook", h.name, "error", err)
		}
	}

	m.log.Info("shutdown complete")
}
