package queue

import (
	"context"
	"fmt"
	"log"
	"time"
)

// sweepTimeout bounds a single purge pass so a stuck broker call
// cannot wedge the loop.
const sweepTimeout = 2 * time.Minute

// GarbageCollector periodically purges dead-lettered messages older
// than the retention window. Exhausted enrichment and maintenance jobs
// land in the DLQ for inspection; this keeps it from growing forever.
type GarbageCollector struct {
	dlqPurger DLQPurger
	interval  time.Duration
	retention time.Duration
}

// NewGarbageCollector creates a collector over the purger. The
// RabbitMQ queue implements DLQPurger; tests substitute a fake.
func NewGarbageCollector(purger DLQPurger, interval time.Duration, retention time.Duration) *GarbageCollector {
	return &GarbageCollector{
		dlqPurger: purger,
		interval:  interval,
		retention: retention,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (gc *GarbageCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := gc.sweep(ctx); err != nil {
				log.Printf("DLQ GC error: %v", err)
			}
		}
	}
}

func (gc *GarbageCollector) sweep(ctx context.Context) error {
	if gc.dlqPurger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()
	n, err := gc.dlqPurger.PurgeOlderThan(ctx, gc.retention)
	if err != nil {
		return fmt.Errorf("DLQ purge: %w", err)
	}
	if n > 0 {
		log.Printf("DLQ GC purged %d message(s) older than %v", n, gc.retention)
	}
	return nil
}
