package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/services/ai"
	"github.com/stashd/stash/internal/taxonomy"
)

const (
	// BloatThreshold is the leaf note count at which a bucket is
	// examined for splitting.
	BloatThreshold = 15

	// maxSplitClusters bounds a split proposal.
	maxSplitClusters = 5
	// minClusterSize is the smallest acceptable sub-topic.
	minClusterSize = 2
)

const bloatSystemPrompt = `You review one category of a personal knowledge base and decide whether its notes cluster into distinct sub-topics worth splitting out.

Respond with a JSON object:
{
  "should_split": <bool>,
  "clusters": [{"name": "...", "note_ids": ["..."]}],
  "reason": "one sentence"
}

Rules: at most 5 clusters, each with at least 2 notes, every note in exactly one cluster. If the notes do not cluster cleanly, return should_split=false with an empty clusters array.`

type bloatVerdict struct {
	ShouldSplit bool   `json:"should_split"`
	Clusters    []struct {
		Name    string   `json:"name"`
		NoteIDs []string `json:"note_ids"`
	} `json:"clusters"`
	Reason string `json:"reason"`
}

// CheckBloat examines every leaf bucket holding at least the threshold
// note count and emits a split_bucket suggestion when the model finds
// clean sub-topic clusters. Returns the number of suggestions created.
func (e *Engine) CheckBloat(ctx context.Context, ownerID uuid.UUID) (int, error) {
	snap, err := e.taxonomy.GetTree(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	created := 0
	for _, b := range snap.Buckets {
		node := snap.ByID[b.ID]
		if b.IsRoot() || len(node.Children) > 0 || node.NoteCount < BloatThreshold {
			continue
		}

		ok, err := e.checkBucketBloat(ctx, ownerID, snap, b)
		if err != nil {
			e.logger.Warn("bloat check skipped bucket",
				zap.String("bucket_id", b.ID.String()), zap.Error(err))
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func (e *Engine) checkBucketBloat(ctx context.Context, ownerID uuid.UUID, snap *taxonomy.Snapshot, bucket *models.Bucket) (bool, error) {
	notes, err := e.notes.ListByBucket(ctx, ownerID, bucket.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list notes: %w", err)
	}
	if len(notes) < BloatThreshold {
		return false, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Bucket: %s (%d notes)\n\nNotes:\n", snap.Paths[bucket.ID], len(notes))
	for _, n := range notes {
		fmt.Fprintf(&sb, "- %s: %s\n", n.ID, n.Title)
	}

	raw, err := e.model.Complete(ctx, bloatSystemPrompt, sb.String())
	if err != nil {
		return false, fmt.Errorf("bloat verdict request failed: %w", err)
	}
	var verdict bloatVerdict
	if err := json.Unmarshal([]byte(ai.ExtractJSONObject(raw)), &verdict); err != nil {
		return false, fmt.Errorf("unparsable bloat verdict: %w", err)
	}
	if !verdict.ShouldSplit {
		return false, nil
	}

	splits, err := validateClusters(verdict, notes)
	if err != nil {
		return false, fmt.Errorf("rejected split proposal: %w", err)
	}

	bucketID := bucket.ID
	return e.emit(ctx, &models.Suggestion{
		OwnerID: ownerID,
		Kind:    models.SuggestionSplitBucket,
		Payload: models.SuggestionPayload{
			BucketID: &bucketID,
			Splits:   splits,
			Reason:   verdict.Reason,
		},
	})
}

// validateClusters enforces the cluster rules: 2..maxSplitClusters
// groups, each at least minClusterSize, every note assigned exactly
// once and belonging to the bucket.
func validateClusters(verdict bloatVerdict, notes []*models.Note) ([]models.SplitGroup, error) {
	if len(verdict.Clusters) < 2 || len(verdict.Clusters) > maxSplitClusters {
		return nil, fmt.Errorf("%d clusters outside [2, %d]", len(verdict.Clusters), maxSplitClusters)
	}

	valid := make(map[uuid.UUID]bool, len(notes))
	for _, n := range notes {
		valid[n.ID] = true
	}

	assigned := make(map[uuid.UUID]bool, len(notes))
	groups := make([]models.SplitGroup, 0, len(verdict.Clusters))
	for _, c := range verdict.Clusters {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("cluster with empty name")
		}
		if len(c.NoteIDs) < minClusterSize {
			return nil, fmt.Errorf("cluster %q has fewer than %d notes", c.Name, minClusterSize)
		}
		group := models.SplitGroup{Name: strings.TrimSpace(c.Name)}
		for _, raw := range c.NoteIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("cluster %q has invalid note id %q", c.Name, raw)
			}
			if !valid[id] {
				return nil, fmt.Errorf("cluster %q references note %s outside the bucket", c.Name, id)
			}
			if assigned[id] {
				return nil, fmt.Errorf("note %s assigned to more than one cluster", id)
			}
			assigned[id] = true
			group.NoteIDs = append(group.NoteIDs, id)
		}
		groups = append(groups, group)
	}

	if len(assigned) != len(notes) {
		return nil, fmt.Errorf("%d of %d notes left unassigned", len(notes)-len(assigned), len(notes))
	}
	return groups, nil
}
