package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// TaskGroup tracks the background timer tasks of the bot. Each task gets its own
// cancellable context derived from the group, so it can be stopped individually or
// together with everything else on shutdown.
type TaskGroup struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	active  atomic.Int64
}

// NewTaskGroup creates a group bound to parent.
func NewTaskGroup(parent context.Context, logger *zap.Logger) *TaskGroup {
	ctx, cancel := context.WithCancel(parent)
	return &TaskGroup{ctx: ctx, cancel: cancel, logger: logger}
}

// Go runs fn in its own goroutine and returns the handle that cancels it.
// After Shutdown, fn is not started and the returned handle is a no-op.
func (g *TaskGroup) Go(name string, fn func(ctx context.Context)) context.CancelFunc {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		g.logger.Debug("task not started, group stopped", zap.String("task", name))
		return func() {}
	}
	ctx, cancel := context.WithCancel(g.ctx)
	g.wg.Add(1)
	g.active.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer g.active.Add(-1)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("task panicked", zap.String("task", name), zap.Any("panic", r), zap.Stack("stack"))
			}
		}()
		fn(ctx)
	}()
	return cancel
}

// Active returns the number of running tasks.
func (g *TaskGroup) Active() int {
	return int(g.active.Load())
}

// Shutdown cancels every task and waits for them to return or for ctx to expire.
func (g *TaskGroup) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
