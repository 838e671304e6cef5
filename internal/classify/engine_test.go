package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/taxonomy"
	"github.com/stashd/stash/internal/testutil"
)

func testEngine(buckets []*models.Bucket, complete func(ctx context.Context, system, prompt string) (string, error)) (*Engine, *testutil.MockBucketRepo) {
	bucketRepo := &testutil.MockBucketRepo{
		ListByOwnerFunc: func(ctx context.Context, ownerID uuid.UUID) ([]*models.Bucket, error) {
			return buckets, nil
		},
	}
	noteRepo := &testutil.MockNoteRepo{
		NoteCountsFunc: func(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]int, error) {
			return map[uuid.UUID]int{}, nil
		},
	}
	model := &testutil.MockLanguageModel{CompleteFunc: complete}
	tax := taxonomy.NewCache(bucketRepo, noteRepo, time.Minute)
	return NewEngine(model, tax, bucketRepo, zap.NewNop()), bucketRepo
}

func TestClassify_ParsesProposal(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	bucket := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Go", Kind: models.BucketKindProject}

	engine, _ := testEngine([]*models.Bucket{bucket}, func(ctx context.Context, system, prompt string) (string, error) {
		return fmt.Sprintf(`{"bucket_id":%q,"confidence":0.9,"tags":["go","generics"],"is_original_thought":false}`, bucket.ID), nil
	})

	result, err := engine.Classify(context.Background(), ownerID, Input{Title: "Generics notes", Content: "type params"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.BucketID == nil || *result.BucketID != bucket.ID {
		t.Errorf("expected bucket %s, got %v", bucket.ID, result.BucketID)
	}
	if result.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", result.Confidence)
	}
	if len(result.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 entries", result.Tags)
	}
}

func TestClassify_FailuresReturnNil(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	bucket := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Go", Kind: models.BucketKindProject}

	tests := []struct {
		name     string
		response string
		err      error
	}{
		{name: "transport error", err: errors.New("connection reset")},
		{name: "not json", response: "I think Projects is best!"},
		{name: "confidence out of range", response: `{"bucket_id":null,"confidence":1.7}`},
		{name: "unknown bucket id", response: fmt.Sprintf(`{"bucket_id":%q,"confidence":0.9}`, uuid.New())},
		{name: "malformed bucket id", response: `{"bucket_id":"not-a-uuid","confidence":0.9}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := testEngine([]*models.Bucket{bucket}, func(ctx context.Context, system, prompt string) (string, error) {
				return tt.response, tt.err
			})
			result, err := engine.Classify(context.Background(), ownerID, Input{Title: "x"})
			if err == nil {
				t.Fatal("expected an error")
			}
			if result != nil {
				t.Errorf("expected nil result on failure, got %+v", result)
			}
		})
	}
}

func TestApplyPolicy(t *testing.T) {
	t.Parallel()

	proposed := uuid.New()

	tests := []struct {
		name           string
		result         *Result
		wantBucket     bool
		wantSuggestion bool
	}{
		{name: "nil result abstains", result: nil},
		{name: "no bucket abstains", result: &Result{Confidence: 0.95}},
		{name: "below suggest threshold abstains", result: &Result{BucketID: &proposed, Confidence: 0.39}},
		{name: "mid confidence suggests only", result: &Result{BucketID: &proposed, Confidence: 0.6}, wantSuggestion: true},
		{name: "just below pre-file suggests only", result: &Result{BucketID: &proposed, Confidence: 0.84}, wantSuggestion: true},
		{name: "high confidence pre-files", result: &Result{BucketID: &proposed, Confidence: 0.85}, wantBucket: true, wantSuggestion: true},
		{name: "max confidence pre-files", result: &Result{BucketID: &proposed, Confidence: 1.0}, wantBucket: true, wantSuggestion: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stale := uuid.New()
			note := &models.Note{ID: uuid.New(), BucketID: &stale}
			ApplyPolicy(note, tt.result)

			if note.IsClassified {
				t.Error("policy must never set is_classified")
			}
			if tt.wantBucket {
				if note.BucketID == nil || *note.BucketID != proposed {
					t.Errorf("BucketID = %v, want %s", note.BucketID, proposed)
				}
			} else if note.BucketID != nil {
				t.Errorf("BucketID = %v, want nil", note.BucketID)
			}
			if tt.wantSuggestion {
				if note.AISuggestedBucket == nil || *note.AISuggestedBucket != proposed {
					t.Errorf("AISuggestedBucket = %v, want %s", note.AISuggestedBucket, proposed)
				}
				if note.AIConfidence == nil {
					t.Error("expected AIConfidence to be recorded")
				}
			} else if note.AISuggestedBucket != nil {
				t.Errorf("AISuggestedBucket = %v, want nil", note.AISuggestedBucket)
			}
		})
	}
}

func TestMaterializeNewBucket_ReusesSibling(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	root := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Resources", Kind: models.BucketKindResource}
	existing := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Cooking", Kind: models.BucketKindResource, ParentID: &root.ID}

	engine, repo := testEngine([]*models.Bucket{root, existing}, nil)
	repo.GetRootByKindFunc = func(ctx context.Context, id uuid.UUID, kind models.BucketKind) (*models.Bucket, error) {
		return root, nil
	}
	created := 0
	repo.CreateFunc = func(ctx context.Context, b *models.Bucket) error {
		created++
		return nil
	}

	id, err := engine.MaterializeNewBucket(context.Background(), ownerID, &NewBucketProposal{Name: "cooking", Kind: models.BucketKindResource})
	if err != nil {
		t.Fatalf("MaterializeNewBucket() error = %v", err)
	}
	if *id != existing.ID {
		t.Errorf("expected existing sibling %s, got %s", existing.ID, *id)
	}
	if created != 0 {
		t.Errorf("expected no bucket creation, got %d", created)
	}
}

func TestMaterializeNewBucket_CreatesUnderRoot(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	root := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Resources", Kind: models.BucketKindResource}

	engine, repo := testEngine([]*models.Bucket{root}, nil)
	repo.GetRootByKindFunc = func(ctx context.Context, id uuid.UUID, kind models.BucketKind) (*models.Bucket, error) {
		return root, nil
	}
	var createdBucket *models.Bucket
	repo.CreateFunc = func(ctx context.Context, b *models.Bucket) error {
		createdBucket = b
		return nil
	}

	id, err := engine.MaterializeNewBucket(context.Background(), ownerID, &NewBucketProposal{Name: "Cooking", Kind: models.BucketKindResource})
	if err != nil {
		t.Fatalf("MaterializeNewBucket() error = %v", err)
	}
	if createdBucket == nil {
		t.Fatal("expected bucket creation")
	}
	if *id != createdBucket.ID {
		t.Errorf("returned id %s does not match created bucket %s", *id, createdBucket.ID)
	}
	if createdBucket.ParentID == nil || *createdBucket.ParentID != root.ID {
		t.Errorf("expected parent %s, got %v", root.ID, createdBucket.ParentID)
	}
}
