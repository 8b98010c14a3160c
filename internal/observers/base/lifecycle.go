package base

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrShutdownTimeout is returned when graceful shutdown times out.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// LifecycleManager handles goroutine lifecycle and graceful shutdown. Stop
// waits for every started goroutine, which is how observers guarantee no
// background work is in flight after Stop returns.
type LifecycleManager struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stopCh chan struct{}
	logger *zap.Logger

	stopOnce          sync.Once
	runningGoroutines atomic.Int32
}

// NewLifecycleManager creates a lifecycle manager scoped under ctx.
func NewLifecycleManager(ctx context.Context, logger *zap.Logger) *LifecycleManager {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &LifecycleManager{
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// Start launches a named goroutine under lifecycle management.
func (lm *LifecycleManager) Start(name string, fn func()) {
	lm.wg.Add(1)
	lm.runningGoroutines.Add(1)

	go func() {
		defer lm.wg.Done()
		defer lm.runningGoroutines.Add(-1)

		if lm.logger != nil {
			lm.logger.Debug("Starting goroutine", zap.String("name", name))
			defer lm.logger.Debug("Goroutine stopped", zap.String("name", name))
		}

		fn()
	}()
}

// Stop signals every managed goroutine and joins them, waiting at most
// timeout. Safe to call more than once; later calls only wait.
func (lm *LifecycleManager) Stop(timeout time.Duration) error {
	lm.stopOnce.Do(func() {
		close(lm.stopCh)
		lm.cancel()
	})

	done := make(chan struct{})
	go func() {
		lm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if lm.logger != nil {
			lm.logger.Debug("Graceful shutdown completed")
		}
		return nil
	case <-time.After(timeout):
		if lm.logger != nil {
			lm.logger.Warn("Shutdown timeout exceeded",
				zap.Int32("still_running", lm.runningGoroutines.Load()))
		}
		return ErrShutdownTimeout
	}
}

// Context returns the lifecycle context.
func (lm *LifecycleManager) Context() context.Context {
	return lm.ctx
}

// StopChannel returns the stop signal channel.
func (lm *LifecycleManager) StopChannel() <-chan struct{} {
	return lm.stopCh
}

// IsShuttingDown reports whether shutdown has been initiated.
func (lm *LifecycleManager) IsShuttingDown() bool {
	select {
	case <-lm.stopCh:
		return true
	default:
		return false
	}
}

// GetRunningGoroutines returns the number of running goroutines.
func (lm *LifecycleManager) GetRunningGoroutines() int32 {
	return lm.runningGoroutines.Load()
}
