package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownManager handles graceful shutdown of the service. The HTTP
// server is drained first, then the registered cleanup functions run
// concurrently under a shared deadline.
type ShutdownManager struct {
	logger          *Logger
	server          *http.Server
	cleanups        []namedCleanup
	shutdownTimeout time.Duration
	mu              sync.Mutex
}

// CleanupFunc is a function to call during shutdown
type CleanupFunc func(context.Context) error

type namedCleanup struct {
	name string
	fn   CleanupFunc
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:          logger,
		server:          server,
		shutdownTimeout: timeout,
	}
}

// RegisterCleanup registers a named function to call during shutdown
func (sm *ShutdownManager) RegisterCleanup(name string, fn CleanupFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.cleanups = append(sm.cleanups, namedCleanup{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT or SIGTERM is received, then
// performs the shutdown sequence.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	return sm.Shutdown(ctx)
}

// Shutdown drains the HTTP server and runs all registered cleanups.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	if sm.server != nil {
		sm.logger.Info("Shutting down HTTP server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		sm.logger.Info("HTTP server shutdown complete")
	}

	sm.mu.Lock()
	cleanups := sm.cleanups
	sm.mu.Unlock()

	var wg sync.WaitGroup
	errChan := make(chan error, len(cleanups))

	for _, c := range cleanups {
		wg.Add(1)
		go func(c namedCleanup) {
			defer wg.Done()
			if err := c.fn(ctx); err != nil {
				sm.logger.WithError(err).Errorf("Cleanup %s failed", c.name)
				errChan <- err
			} else {
				sm.logger.Infof("Cleanup %s complete", c.name)
			}
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sm.logger.Warn("Shutdown timeout reached, forcing shutdown")
		return fmt.Errorf("shutdown timeout reached")
	}

	close(errChan)
	var failed int
	for range errChan {
		failed++
	}
	if failed > 0 {
		return fmt.Errorf("shutdown completed with %d errors", failed)
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}
