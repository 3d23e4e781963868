// Package lifecycle manages worker shutdown: signal handling and ordered
// release of resources.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
)

// Manager coordinates signal handling and resource cleanup for one worker
// process.
type Manager struct {
	logger *zap.Logger

	shutdownOnce sync.Once
	shutdownErr  error
	shuttingDown atomic.Bool
	sawPipe      atomic.Bool

	// Closers to clean up on shutdown
	closers   []io.Closer
	closersMu sync.Mutex
}

// New creates a Manager. A nil logger discards log output.
func New(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

// RegisterCloser adds a closer to be called during shutdown.
// Closers are called in reverse order of registration (LIFO).
func (m *Manager) RegisterCloser(closer io.Closer) {
	m.closersMu.Lock()
	defer m.closersMu.Unlock()
	m.closers = append(m.closers, closer)
}

// WatchSignals intercepts SIGPIPE, so a write to a closed stdout returns
// EPIPE instead of killing the process, and cancels the returned context on
// SIGINT or SIGTERM. stop releases the handlers and must be called.
func (m *Manager) WatchSignals(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGPIPE, syscall.SIGTERM, syscall.SIGINT)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case sig := <-sigCh:
				if sig == syscall.SIGPIPE {
					m.sawPipe.Store(true)
					continue
				}
				m.logger.Info("received signal, draining", zap.String("signal", sig.String()))
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			signal.Stop(sigCh)
			cancel()
			<-done
		})
	}
	return ctx, stop
}

// SawBrokenPipe reports whether a SIGPIPE was delivered since WatchSignals.
func (m *Manager) SawBrokenPipe() bool {
	return m.sawPipe.Load()
}

// Shutdown closes all registered resources in reverse order. Only the first
// call does work; later calls return the first call's result.
func (m *Manager) Shutdown(reason string) error {
	m.shutdownOnce.Do(func() {
		m.shuttingDown.Store(true)
		m.logger.Debug("shutting down", zap.String("reason", reason))

		m.closersMu.Lock()
		closers := m.closers
		m.closersMu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				m.logger.Warn("close failed", zap.Error(err))
				if m.shutdownErr == nil {
					m.shutdownErr = fmt.Errorf("close failed: %w", err)
				}
			}
		}
	})
	return m.shutdownErr
}

// IsShuttingDown returns true if shutdown has been initiated.
func (m *Manager) IsShuttingDown() bool {
	return m.shuttingDown.Load()
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
