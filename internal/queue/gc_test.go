package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeDLQPurger struct {
	purgeFunc func(ctx context.Context, retention time.Duration) (int, error)
}

func (f *fakeDLQPurger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	if f.purgeFunc != nil {
		return f.purgeFunc(ctx, retention)
	}
	return 0, nil
}

func TestGarbageCollector_Sweep_NilPurger(t *testing.T) {
	t.Parallel()

	gc := NewGarbageCollector(nil, time.Minute, 24*time.Hour)
	if err := gc.sweep(context.Background()); err != nil {
		t.Errorf("sweep with nil purger: %v", err)
	}
}

func TestGarbageCollector_Sweep_PassesRetention(t *testing.T) {
	t.Parallel()

	var called atomic.Bool
	fake := &fakeDLQPurger{
		purgeFunc: func(ctx context.Context, retention time.Duration) (int, error) {
			called.Store(true)
			if retention != 24*time.Hour {
				t.Errorf("retention = %v, want 24h", retention)
			}
			return 3, nil
		},
	}
	gc := NewGarbageCollector(fake, time.Minute, 24*time.Hour)
	if err := gc.sweep(context.Background()); err != nil {
		t.Errorf("sweep: %v", err)
	}
	if !called.Load() {
		t.Error("PurgeOlderThan was not called")
	}
}

func TestGarbageCollector_Sweep_PurgerError(t *testing.T) {
	t.Parallel()

	fake := &fakeDLQPurger{
		purgeFunc: func(context.Context, time.Duration) (int, error) {
			return 0, errors.New("purge failed")
		},
	}
	gc := NewGarbageCollector(fake, time.Minute, time.Hour)
	if err := gc.sweep(context.Background()); err == nil {
		t.Error("expected error from sweep")
	}
}

func TestGarbageCollector_Start_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	gc := NewGarbageCollector(&fakeDLQPurger{}, 24*time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gc.Start(ctx); err == nil {
		t.Error("expected context cancelled error")
	}
}
