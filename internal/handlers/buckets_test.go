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

	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/taxonomy"
	"github.com/stashd/stash/internal/testutil"
)

type bucketFixture struct {
	handler *BucketHandler
	notes   *testutil.MockNoteRepo
	buckets *testutil.MockBucketRepo
	ownerID uuid.UUID
}

func newBucketFixture(t *testing.T, ownerID uuid.UUID, bucketList []*models.Bucket, counts map[uuid.UUID]int) *bucketFixture {
	t.Helper()

	notes := &testutil.MockNoteRepo{
		NoteCountsFunc: func(ctx context.Context, id uuid.UUID) (map[uuid.UUID]int, error) {
			return counts, nil
		},
	}
	buckets := &testutil.MockBucketRepo{
		ListByOwnerFunc: func(ctx context.Context, id uuid.UUID) ([]*models.Bucket, error) {
			return bucketList, nil
		},
		EnsureRootsFunc: func(ctx context.Context, id uuid.UUID) error { return nil },
	}
	tax := taxonomy.NewCache(buckets, notes, time.Minute)

	return &bucketFixture{
		handler: NewBucketHandler(buckets, notes, tax, zap.NewNop()),
		notes:   notes,
		buckets: buckets,
		ownerID: ownerID,
	}
}

// paraRoots builds the four root buckets for an owner.
func paraRoots(ownerID uuid.UUID) []*models.Bucket {
	out := make([]*models.Bucket, 0, len(models.AllBucketKinds))
	for _, kind := range models.AllBucketKinds {
		out = append(out, &models.Bucket{
			ID:      uuid.New(),
			OwnerID: ownerID,
			Name:    string(kind) + "s",
			Kind:    kind,
			Active:  true,
		})
	}
	return out
}

func rootOfKind(roots []*models.Bucket, kind models.BucketKind) *models.Bucket {
	for _, b := range roots {
		if b.Kind == kind {
			return b
		}
	}
	return nil
}

func TestCreateBucket_KindMismatchRejected(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	roots := paraRoots(ownerID)
	areaRoot := rootOfKind(roots, models.BucketKindArea)
	f := newBucketFixture(t, ownerID, roots, nil)

	created := false
	f.buckets.CreateFunc = func(ctx context.Context, b *models.Bucket) error {
		created = true
		return nil
	}

	parentID := areaRoot.ID.String()
	w := httptest.NewRecorder()
	f.handler.CreateBucket(w, ownedRequest(t, ownerID, "POST", "/api/v1/buckets",
		map[string]any{"name": "Woodworking", "kind": "project", "parent_id": parentID}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for kind mismatch", w.Code)
	}
	if created {
		t.Error("no bucket row may be written on kind mismatch")
	}
}

func TestCreateBucket_ArchiveKindRejected(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	f := newBucketFixture(t, ownerID, paraRoots(ownerID), nil)

	w := httptest.NewRecorder()
	f.handler.CreateBucket(w, ownedRequest(t, ownerID, "POST", "/api/v1/buckets",
		map[string]any{"name": "Old stuff", "kind": "archive"}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for direct archive creation", w.Code)
	}
}

func TestCreateBucket_SubBucketGuard(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	roots := paraRoots(ownerID)
	projectRoot := rootOfKind(roots, models.BucketKindProject)
	child := &models.Bucket{
		ID: uuid.New(), OwnerID: ownerID, Name: "Go",
		Kind: models.BucketKindProject, ParentID: &projectRoot.ID, Active: true,
	}

	tests := []struct {
		name       string
		childNotes int
		wantStatus int
	}{
		{name: "too few notes", childNotes: 14, wantStatus: http.StatusBadRequest},
		{name: "enough notes", childNotes: 15, wantStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newBucketFixture(t, ownerID, append([]*models.Bucket{child}, roots...),
				map[uuid.UUID]int{child.ID: tt.childNotes})
			f.buckets.CreateFunc = func(ctx context.Context, b *models.Bucket) error { return nil }

			parentID := child.ID.String()
			w := httptest.NewRecorder()
			f.handler.CreateBucket(w, ownedRequest(t, ownerID, "POST", "/api/v1/buckets",
				map[string]any{"name": "Generics", "kind": "project", "parent_id": parentID}))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestCreateBucket_ReusesSameNameSibling(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	roots := paraRoots(ownerID)
	areaRoot := rootOfKind(roots, models.BucketKindArea)
	existing := &models.Bucket{
		ID: uuid.New(), OwnerID: ownerID, Name: "Cooking",
		Kind: models.BucketKindArea, ParentID: &areaRoot.ID, Active: true,
	}
	f := newBucketFixture(t, ownerID, append(roots, existing), nil)

	created := false
	f.buckets.CreateFunc = func(ctx context.Context, b *models.Bucket) error {
		created = true
		return nil
	}
	f.buckets.GetRootByKindFunc = func(ctx context.Context, id uuid.UUID, kind models.BucketKind) (*models.Bucket, error) {
		return areaRoot, nil
	}

	w := httptest.NewRecorder()
	f.handler.CreateBucket(w, ownedRequest(t, ownerID, "POST", "/api/v1/buckets",
		map[string]any{"name": "cooking", "kind": "area"}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for sibling reuse; body %s", w.Code, w.Body.String())
	}
	if created {
		t.Error("existing same-name sibling should be reused, not duplicated")
	}
}

func TestUpdateBucket_RootRenameRejected(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	roots := paraRoots(ownerID)
	projectRoot := rootOfKind(roots, models.BucketKindProject)
	f := newBucketFixture(t, ownerID, roots, nil)

	f.buckets.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Bucket, error) {
		return projectRoot, nil
	}
	updated := false
	f.buckets.UpdateFunc = func(ctx context.Context, b *models.Bucket) error {
		updated = true
		return nil
	}

	r := ownedRequest(t, ownerID, "PATCH", "/api/v1/buckets/"+projectRoot.ID.String(),
		map[string]string{"name": "My Stuff"})
	r = mux.SetURLVars(r, map[string]string{"id": projectRoot.ID.String()})
	w := httptest.NewRecorder()
	f.handler.UpdateBucket(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for root rename", w.Code)
	}
	if updated {
		t.Error("root rename must not mutate state")
	}
}

func TestDeleteBucket_RootRejected(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	roots := paraRoots(ownerID)
	areaRoot := rootOfKind(roots, models.BucketKindArea)
	f := newBucketFixture(t, ownerID, roots, nil)

	f.buckets.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Bucket, error) {
		return areaRoot, nil
	}

	r := ownedRequest(t, ownerID, "DELETE", "/api/v1/buckets/"+areaRoot.ID.String(), nil)
	r = mux.SetURLVars(r, map[string]string{"id": areaRoot.ID.String()})
	w := httptest.NewRecorder()
	f.handler.DeleteBucket(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for root delete", w.Code)
	}
}

func TestDeleteBucket_ReportsNotesReturned(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	roots := paraRoots(ownerID)
	projectRoot := rootOfKind(roots, models.BucketKindProject)
	child := &models.Bucket{
		ID: uuid.New(), OwnerID: ownerID, Name: "Go",
		Kind: models.BucketKindProject, ParentID: &projectRoot.ID, Active: true,
	}
	f := newBucketFixture(t, ownerID, append(roots, child), nil)

	f.buckets.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Bucket, error) {
		return child, nil
	}
	f.buckets.DeleteSubtreeFunc = func(ctx context.Context, oID, bID uuid.UUID) (int64, error) {
		return 7, nil
	}

	r := ownedRequest(t, ownerID, "DELETE", "/api/v1/buckets/"+child.ID.String(), nil)
	r = mux.SetURLVars(r, map[string]string{"id": child.ID.String()})
	w := httptest.NewRecorder()
	f.handler.DeleteBucket(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	data := decodeData(t, w)
	if data["notes_returned_to_inbox"] != float64(7) {
		t.Errorf("notes_returned_to_inbox = %v, want 7", data["notes_returned_to_inbox"])
	}
}
