package maintenance

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/taxonomy"
	"github.com/stashd/stash/internal/validation"
)

// Executor applies accepted suggestions to the store. Execution is not
// transactional: a failure partway through is returned to the caller
// as an error describing what was applied, never rolled back.
type Executor struct {
	buckets  database.BucketRepositoryInterface
	notes    database.NoteRepositoryInterface
	taxonomy *taxonomy.Cache
	logger   *zap.Logger
}

// NewExecutor creates a suggestion executor.
func NewExecutor(buckets database.BucketRepositoryInterface, notes database.NoteRepositoryInterface, tax *taxonomy.Cache, logger *zap.Logger) *Executor {
	return &Executor{buckets: buckets, notes: notes, taxonomy: tax, logger: logger}
}

// Execute applies one accepted suggestion. Each kind has exactly one
// handler; the payload is re-validated first because it may have been
// persisted by an older version of the emitter.
func (x *Executor) Execute(ctx context.Context, s *models.Suggestion) error {
	if err := validation.ValidateSuggestionPayload(s.Kind, &s.Payload); err != nil {
		return fmt.Errorf("suggestion payload no longer valid: %w", err)
	}

	var err error
	switch s.Kind {
	case models.SuggestionSplitBucket:
		err = x.executeSplit(ctx, s)
	case models.SuggestionMergeBuckets:
		err = x.executeMerge(ctx, s)
	case models.SuggestionRenameBucket:
		err = x.executeRename(ctx, s)
	case models.SuggestionDeleteBucket:
		err = x.executeDelete(ctx, s)
	case models.SuggestionArchiveProject:
		err = x.executeArchive(ctx, s)
	case models.SuggestionReclassifyNote:
		err = x.executeReclassify(ctx, s)
	case models.SuggestionCreateBucket, models.SuggestionCreateSubBucket:
		err = x.executeCreate(ctx, s)
	default:
		err = fmt.Errorf("no executor for suggestion kind %s", s.Kind)
	}

	x.taxonomy.Invalidate(s.OwnerID)
	return err
}

// executeSplit creates one sub-bucket per group and moves each group's
// notes into it. Placement was user-approved, so the notes land
// classified.
func (x *Executor) executeSplit(ctx context.Context, s *models.Suggestion) error {
	parent, err := x.ownedBucket(ctx, s.OwnerID, *s.Payload.BucketID)
	if err != nil {
		return err
	}

	for gi, group := range s.Payload.Splits {
		sub := &models.Bucket{
			ID:       uuid.New(),
			OwnerID:  s.OwnerID,
			Name:     group.Name,
			Kind:     parent.Kind,
			ParentID: &parent.ID,
			Active:   true,
		}
		if err := x.buckets.Create(ctx, sub); err != nil {
			return fmt.Errorf("split applied %d of %d groups, then failed creating %q: %w",
				gi, len(s.Payload.Splits), group.Name, err)
		}
		for ni, noteID := range group.NoteIDs {
			if err := x.moveNote(ctx, s.OwnerID, noteID, sub.ID); err != nil {
				return fmt.Errorf("split group %q moved %d of %d notes, then: %w",
					group.Name, ni, len(group.NoteIDs), err)
			}
		}
	}
	return nil
}

// executeMerge re-resolves both endpoints before acting so a repeat
// execution after partial failure is safe.
func (x *Executor) executeMerge(ctx context.Context, s *models.Suggestion) error {
	source, err := x.ownedBucket(ctx, s.OwnerID, *s.Payload.BucketID)
	if err != nil {
		return err
	}
	target, err := x.ownedBucket(ctx, s.OwnerID, *s.Payload.TargetID)
	if err != nil {
		return err
	}
	if source.IsRoot() {
		return fmt.Errorf("cannot merge away a root bucket")
	}

	notes, err := x.notes.ListByBucket(ctx, s.OwnerID, source.ID)
	if err != nil {
		return fmt.Errorf("failed to list source notes: %w", err)
	}
	for i, n := range notes {
		n.BucketID = &target.ID
		if err := x.notes.Update(ctx, n); err != nil {
			return fmt.Errorf("merge moved %d of %d notes, then: %w", i, len(notes), err)
		}
	}

	if _, err := x.buckets.DeleteSubtree(ctx, s.OwnerID, source.ID); err != nil {
		return fmt.Errorf("merge moved all notes but failed deleting %q: %w", source.Name, err)
	}
	return nil
}

func (x *Executor) executeRename(ctx context.Context, s *models.Suggestion) error {
	bucket, err := x.ownedBucket(ctx, s.OwnerID, *s.Payload.BucketID)
	if err != nil {
		return err
	}
	if bucket.IsRoot() {
		return fmt.Errorf("cannot rename a root bucket")
	}
	bucket.Name = strings.TrimSpace(s.Payload.NewName)
	if err := x.buckets.Update(ctx, bucket); err != nil {
		return fmt.Errorf("failed to rename bucket: %w", err)
	}
	return nil
}

func (x *Executor) executeDelete(ctx context.Context, s *models.Suggestion) error {
	bucket, err := x.ownedBucket(ctx, s.OwnerID, *s.Payload.BucketID)
	if err != nil {
		return err
	}
	if bucket.IsRoot() {
		return fmt.Errorf("cannot delete a root bucket")
	}
	if _, err := x.buckets.DeleteSubtree(ctx, s.OwnerID, bucket.ID); err != nil {
		return fmt.Errorf("failed to delete bucket: %w", err)
	}
	return nil
}

// executeArchive reparents the bucket under the archive root and
// rewrites the kind of the whole subtree, keeping the kind invariant
// (every bucket carries its root ancestor's kind).
func (x *Executor) executeArchive(ctx context.Context, s *models.Suggestion) error {
	bucket, err := x.ownedBucket(ctx, s.OwnerID, *s.Payload.BucketID)
	if err != nil {
		return err
	}
	if bucket.IsRoot() {
		return fmt.Errorf("cannot archive a root bucket")
	}

	archiveRoot, err := x.buckets.GetRootByKind(ctx, s.OwnerID, models.BucketKindArchive)
	if err != nil {
		return fmt.Errorf("failed to resolve archive root: %w", err)
	}

	all, err := x.buckets.ListByOwner(ctx, s.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to list buckets: %w", err)
	}
	byID := make(map[uuid.UUID]*models.Bucket, len(all))
	for _, b := range all {
		byID[b.ID] = b
	}
	subtree := database.CollectDescendants(all, bucket.ID)

	bucket.ParentID = &archiveRoot.ID
	bucket.Kind = models.BucketKindArchive
	if err := x.buckets.Update(ctx, bucket); err != nil {
		return fmt.Errorf("failed to reparent bucket: %w", err)
	}
	done := 0
	for _, id := range subtree {
		b, ok := byID[id]
		if !ok || id == bucket.ID {
			continue
		}
		b.Kind = models.BucketKindArchive
		if err := x.buckets.Update(ctx, b); err != nil {
			return fmt.Errorf("archive updated %d of %d descendants, then: %w", done, len(subtree)-1, err)
		}
		done++
	}
	return nil
}

// executeReclassify moves each listed note to the target bucket.
// Acceptance is user confirmation, so the notes land classified.
func (x *Executor) executeReclassify(ctx context.Context, s *models.Suggestion) error {
	if _, err := x.ownedBucket(ctx, s.OwnerID, *s.Payload.BucketID); err != nil {
		return err
	}
	for i, noteID := range s.Payload.NoteIDs {
		if err := x.moveNote(ctx, s.OwnerID, noteID, *s.Payload.BucketID); err != nil {
			return fmt.Errorf("reclassify moved %d of %d notes, then: %w", i, len(s.Payload.NoteIDs), err)
		}
	}
	return nil
}

func (x *Executor) executeCreate(ctx context.Context, s *models.Suggestion) error {
	root, err := x.buckets.GetRootByKind(ctx, s.OwnerID, s.Payload.ParentKind)
	if err != nil {
		return fmt.Errorf("failed to resolve %s root: %w", s.Payload.ParentKind, err)
	}
	parentID := root.ID
	if s.Kind == models.SuggestionCreateSubBucket && s.Payload.BucketID != nil {
		parent, err := x.ownedBucket(ctx, s.OwnerID, *s.Payload.BucketID)
		if err != nil {
			return err
		}
		parentID = parent.ID
	}

	bucket := &models.Bucket{
		ID:       uuid.New(),
		OwnerID:  s.OwnerID,
		Name:     strings.TrimSpace(s.Payload.BucketName),
		Kind:     s.Payload.ParentKind,
		ParentID: &parentID,
		Active:   true,
	}
	if err := x.buckets.Create(ctx, bucket); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (x *Executor) ownedBucket(ctx context.Context, ownerID, bucketID uuid.UUID) (*models.Bucket, error) {
	bucket, err := x.buckets.GetByID(ctx, bucketID)
	if err != nil {
		return nil, fmt.Errorf("bucket not found: %w", err)
	}
	if bucket.OwnerID != ownerID {
		return nil, fmt.Errorf("bucket not found")
	}
	return bucket, nil
}

func (x *Executor) moveNote(ctx context.Context, ownerID, noteID, bucketID uuid.UUID) error {
	note, err := x.notes.GetByID(ctx, noteID)
	if err != nil {
		return fmt.Errorf("note %s not found: %w", noteID, err)
	}
	if note.OwnerID != ownerID {
		return fmt.Errorf("note %s not found", noteID)
	}
	note.BucketID = &bucketID
	note.IsClassified = true
	if err := x.notes.Update(ctx, note); err != nil {
		return fmt.Errorf("failed to move note %s: %w", noteID, err)
	}
	return nil
}
