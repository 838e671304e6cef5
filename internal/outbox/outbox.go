// Package outbox runs fire-and-forget writes off the critical response
// path with a uniform retry contract: one retry after a fixed delay,
// then log and drop. In-memory state is the source of truth for the
// process lifetime; these writes are eventually-consistent backup.
package outbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRetryDelay is the wait before the single retry.
const DefaultRetryDelay = 500 * time.Millisecond

// Outbox dispatches detached write operations.
type Outbox struct {
	logger     *zap.Logger
	retryDelay time.Duration
	wg         sync.WaitGroup
}

// New creates an outbox. retryDelay <= 0 selects the default.
func New(logger *zap.Logger, retryDelay time.Duration) *Outbox {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Outbox{logger: logger, retryDelay: retryDelay}
}

// Submit runs op on its own goroutine, detached from the caller's
// context. On failure the op is retried exactly once after the retry
// delay; a second failure is logged and the write dropped.
func (o *Outbox) Submit(name string, op func(ctx context.Context) error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx := context.Background()

		err := o.run(ctx, op)
		if err == nil {
			return
		}

		o.logger.Debug("outbox_write_failed_retrying",
			zap.String("op", name),
			zap.Error(err),
		)
		time.Sleep(o.retryDelay)

		if err := o.run(ctx, op); err != nil {
			o.logger.Warn("outbox_write_dropped",
				zap.String("op", name),
				zap.Error(err),
			)
		}
	}()
}

func (o *Outbox) run(ctx context.Context, op func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return op(ctx)
}

// Wait blocks until all submitted operations have finished. Intended
// for shutdown and tests.
func (o *Outbox) Wait() {
	o.wg.Wait()
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return "outbox op panicked"
}
