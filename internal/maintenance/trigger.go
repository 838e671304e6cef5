package maintenance

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/outbox"
)

const (
	// FirstAnalysisAt is the note total that triggers the first full
	// maintenance run.
	FirstAnalysisAt = 30

	// AnalysisInterval is how many further notes accumulate between
	// subsequent runs.
	AnalysisInterval = 50
)

// Scheduler is what a trigger fires into: typically the queue
// publisher, in tests a recording fake.
type Scheduler interface {
	ScheduleMaintenance(ctx context.Context, ownerID uuid.UUID) error
}

// Trigger keeps per-owner note-count bookkeeping and fires maintenance
// runs at the configured watermarks. NoteSaved is called from the save
// path and must never block it, so all work goes through the outbox.
type Trigger struct {
	state     database.MaintenanceStateRepositoryInterface
	scheduler Scheduler
	outbox    *outbox.Outbox
	logger    *zap.Logger
}

// NewTrigger creates a maintenance trigger.
func NewTrigger(state database.MaintenanceStateRepositoryInterface, scheduler Scheduler, ob *outbox.Outbox, logger *zap.Logger) *Trigger {
	return &Trigger{state: state, scheduler: scheduler, outbox: ob, logger: logger}
}

// NoteSaved records one more saved note and schedules a maintenance
// run when the total crosses a watermark.
func (t *Trigger) NoteSaved(ownerID uuid.UUID) {
	t.outbox.Submit("maintenance_trigger", func(ctx context.Context) error {
		total, err := t.state.IncrementTotal(ctx, ownerID)
		if err != nil {
			return err
		}
		if !ShouldAnalyze(total) {
			return nil
		}

		state, err := t.state.Get(ctx, ownerID)
		if err != nil {
			return err
		}
		// The watermark guards against double-firing when two saves
		// race past the same threshold.
		if state.LastAnalyzedAt >= total {
			return nil
		}
		state.TotalNotes = total
		state.LastAnalyzedAt = total
		if err := t.state.Set(ctx, state); err != nil {
			return err
		}

		t.logger.Info("maintenance_triggered",
			zap.String("owner_id", ownerID.String()),
			zap.Int("total_notes", total),
		)
		return t.scheduler.ScheduleMaintenance(ctx, ownerID)
	})
}

// ShouldAnalyze reports whether a note total sits on a maintenance
// watermark: the first at 30, then every 50 notes after.
func ShouldAnalyze(total int) bool {
	if total < FirstAnalysisAt {
		return false
	}
	return (total-FirstAnalysisAt)%AnalysisInterval == 0
}
