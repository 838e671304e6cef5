package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stashd/stash/internal/models"
)

// StaleAfterDays is the inactivity window after which a project bucket
// is proposed for archiving.
const StaleAfterDays = 30

// CheckStaleness emits an archive_project suggestion for every
// non-root project bucket whose most recent capture is at least
// StaleAfterDays old. Buckets that never received a note are skipped;
// emptiness is the reorganization routine's concern. Returns the
// number of suggestions created.
func (e *Engine) CheckStaleness(ctx context.Context, ownerID uuid.UUID) (int, error) {
	snap, err := e.taxonomy.GetTree(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load taxonomy: %w", err)
	}
	lastCaptures, err := e.notes.LastCaptures(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load capture times: %w", err)
	}

	now := time.Now()
	created := 0
	for _, b := range snap.Buckets {
		if b.Kind != models.BucketKindProject || b.IsRoot() {
			continue
		}
		last, ok := lastCaptures[b.ID]
		if !ok {
			continue
		}
		days := int(now.Sub(last).Hours() / 24)
		if days < StaleAfterDays {
			continue
		}

		bucketID := b.ID
		ok, err := e.emit(ctx, &models.Suggestion{
			OwnerID: ownerID,
			Kind:    models.SuggestionArchiveProject,
			Payload: models.SuggestionPayload{
				BucketID:     &bucketID,
				BucketName:   b.Name,
				DaysInactive: days,
				Reason:       fmt.Sprintf("No new captures in %d days", days),
			},
		})
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}
