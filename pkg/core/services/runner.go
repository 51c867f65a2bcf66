package services

import (
	"context"

	"go.uber.org/zap"
)

// Runner serializes every event-driven task onto a single goroutine. The
// notification sources (snapshot watch, record watches, the midnight tick
// and the gateway handlers) all share the mutable bindings document, and
// funneling their work through one queue makes the no-concurrent-writer
// assumption explicit instead of an accident of callback ordering.
type Runner struct {
	tasks  chan task
	logger *zap.Logger
}

type task struct {
	name string
	fn   func(context.Context) error
}

// NewRunner creates a runner with the given queue depth.
func NewRunner(depth int, logger *zap.Logger) *Runner {
	return &Runner{
		tasks:  make(chan task, depth),
		logger: logger,
	}
}

// Enqueue schedules a task. Blocks when the queue is full, which applies
// natural backpressure to bursty notification sources.
func (r *Runner) Enqueue(name string, fn func(context.Context) error) {
	r.tasks <- task{name: name, fn: fn}
}

// StatusStore reports the operator kill switch written by the web app.
type StatusStore interface {
	BotEnabled(ctx context.Context) (bool, error)
}

// Gated wraps a task so it is skipped while the bridge is switched off
// from the web app. Status read failures fail open: an unreachable store
// should not silence the bridge beyond the failure itself.
func Gated(store StatusStore, logger *zap.Logger, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		enabled, err := store.BotEnabled(ctx)
		if err != nil {
			logger.Warn("failed to read bot status", zap.Error(err))
		}
		if !enabled {
			logger.Debug("bridge disabled, skipping task")
			return nil
		}
		return fn(ctx)
	}
}

// Run drains the queue until ctx is cancelled. Task errors are logged, not
// propagated: every flow is idempotently re-derivable from the store, so
// the next notification is the retry mechanism.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.tasks:
			if err := t.fn(ctx); err != nil {
				r.logger.Error("task failed", zap.String("task", t.name), zap.Error(err))
			}
		}
	}
}
