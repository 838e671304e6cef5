package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/maintenance"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/taxonomy"
	"github.com/stashd/stash/internal/testutil"
)

type suggestionFixture struct {
	handler     *SuggestionHandler
	suggestions *testutil.MockSuggestionRepo
	buckets     *testutil.MockBucketRepo
	notes       *testutil.MockNoteRepo
	ownerID     uuid.UUID
}

func newSuggestionFixture(t *testing.T, bucketList []*models.Bucket) *suggestionFixture {
	t.Helper()

	notes := &testutil.MockNoteRepo{
		NoteCountsFunc: func(ctx context.Context, id uuid.UUID) (map[uuid.UUID]int, error) {
			return map[uuid.UUID]int{}, nil
		},
	}
	buckets := &testutil.MockBucketRepo{
		ListByOwnerFunc: func(ctx context.Context, id uuid.UUID) ([]*models.Bucket, error) {
			return bucketList, nil
		},
	}
	suggestions := &testutil.MockSuggestionRepo{}
	tax := taxonomy.NewCache(buckets, notes, time.Minute)
	executor := maintenance.NewExecutor(buckets, notes, tax, zap.NewNop())

	return &suggestionFixture{
		handler:     NewSuggestionHandler(suggestions, executor, zap.NewNop()),
		suggestions: suggestions,
		buckets:     buckets,
		notes:       notes,
		ownerID:     uuid.New(),
	}
}

func suggestionRequest(t *testing.T, ownerID uuid.UUID, id uuid.UUID, action string) *http.Request {
	t.Helper()
	r := ownedRequest(t, ownerID, "POST", "/api/v1/suggestions/"+id.String()+"/"+action, map[string]any{})
	return mux.SetURLVars(r, map[string]string{"id": id.String()})
}

func TestAcceptSuggestion_AppliesAndRecords(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	root := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Projects", Kind: models.BucketKindProject, Active: true}
	bucket := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Old Site", Kind: models.BucketKindProject, ParentID: &root.ID, Active: true}
	f := newSuggestionFixture(t, []*models.Bucket{root, bucket})
	f.ownerID = ownerID

	suggestion := &models.Suggestion{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Kind:    models.SuggestionRenameBucket,
		Payload: models.SuggestionPayload{BucketID: &bucket.ID, NewName: "Legacy Site"},
		Status:  models.SuggestionPending,
	}
	f.suggestions.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Suggestion, error) {
		return suggestion, nil
	}
	f.buckets.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Bucket, error) {
		return bucket, nil
	}

	var renamed *models.Bucket
	f.buckets.UpdateFunc = func(ctx context.Context, b *models.Bucket) error {
		renamed = b
		return nil
	}
	var recordedStatus models.SuggestionStatus
	f.suggestions.UpdateStatusFunc = func(ctx context.Context, oID, id uuid.UUID, status models.SuggestionStatus) error {
		recordedStatus = status
		return nil
	}

	w := httptest.NewRecorder()
	f.handler.Accept(w, suggestionRequest(t, ownerID, suggestion.ID, "accept"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if renamed == nil || renamed.Name != "Legacy Site" {
		t.Errorf("bucket not renamed: %+v", renamed)
	}
	if recordedStatus != models.SuggestionAccepted {
		t.Errorf("recorded status = %q, want accepted", recordedStatus)
	}
}

func TestAcceptSuggestion_ExecutionFailureLeavesPending(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	root := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Projects", Kind: models.BucketKindProject, Active: true}
	f := newSuggestionFixture(t, []*models.Bucket{root})
	f.ownerID = ownerID

	// Renaming a root is refused by the executor.
	suggestion := &models.Suggestion{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Kind:    models.SuggestionRenameBucket,
		Payload: models.SuggestionPayload{BucketID: &root.ID, NewName: "Mine"},
		Status:  models.SuggestionPending,
	}
	f.suggestions.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Suggestion, error) {
		return suggestion, nil
	}
	f.buckets.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Bucket, error) {
		return root, nil
	}

	statusUpdated := false
	f.suggestions.UpdateStatusFunc = func(ctx context.Context, oID, id uuid.UUID, status models.SuggestionStatus) error {
		statusUpdated = true
		return nil
	}

	w := httptest.NewRecorder()
	f.handler.Accept(w, suggestionRequest(t, ownerID, suggestion.ID, "accept"))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 when execution fails", w.Code)
	}
	if statusUpdated {
		t.Error("failed execution must leave the suggestion pending")
	}
}

func TestDismissSuggestion(t *testing.T) {
	t.Parallel()

	f := newSuggestionFixture(t, nil)
	bucketID := uuid.New()
	suggestion := &models.Suggestion{
		ID:      uuid.New(),
		OwnerID: f.ownerID,
		Kind:    models.SuggestionDeleteBucket,
		Payload: models.SuggestionPayload{BucketID: &bucketID},
		Status:  models.SuggestionPending,
	}
	f.suggestions.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Suggestion, error) {
		return suggestion, nil
	}

	var recordedStatus models.SuggestionStatus
	f.suggestions.UpdateStatusFunc = func(ctx context.Context, oID, id uuid.UUID, status models.SuggestionStatus) error {
		recordedStatus = status
		return nil
	}

	w := httptest.NewRecorder()
	f.handler.Dismiss(w, suggestionRequest(t, f.ownerID, suggestion.ID, "dismiss"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if recordedStatus != models.SuggestionDismissed {
		t.Errorf("recorded status = %q, want dismissed", recordedStatus)
	}
}

func TestSuggestion_AlreadyResolvedRejected(t *testing.T) {
	t.Parallel()

	f := newSuggestionFixture(t, nil)
	bucketID := uuid.New()
	f.suggestions.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Suggestion, error) {
		return &models.Suggestion{
			ID:      id,
			OwnerID: f.ownerID,
			Kind:    models.SuggestionDeleteBucket,
			Payload: models.SuggestionPayload{BucketID: &bucketID},
			Status:  models.SuggestionAccepted,
		}, nil
	}

	w := httptest.NewRecorder()
	f.handler.Dismiss(w, suggestionRequest(t, f.ownerID, uuid.New(), "dismiss"))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 for resolved suggestion", w.Code)
	}
}
