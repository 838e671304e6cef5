package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/request"
	"github.com/stashd/stash/internal/services/extract"
	"github.com/stashd/stash/internal/taxonomy"
	"github.com/stashd/stash/internal/testutil"
)

type fakeExtractor struct {
	result *extract.Result
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (*extract.Result, error) {
	return f.result, f.err
}

type fakeEnqueuer struct {
	enqueued []uuid.UUID
}

func (f *fakeEnqueuer) EnqueueNoteEnrichment(ctx context.Context, ownerID, noteID uuid.UUID) error {
	f.enqueued = append(f.enqueued, noteID)
	return nil
}

type noteFixture struct {
	handler   *NoteHandler
	notes     *testutil.MockNoteRepo
	buckets   *testutil.MockBucketRepo
	extractor *fakeExtractor
	enqueuer  *fakeEnqueuer
	ownerID   uuid.UUID
}

func newNoteFixture(t *testing.T, bucketList []*models.Bucket) *noteFixture {
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
	extractor := &fakeExtractor{}
	enqueuer := &fakeEnqueuer{}
	tax := taxonomy.NewCache(buckets, notes, time.Minute)

	return &noteFixture{
		handler:   NewNoteHandler(notes, tax, extractor, enqueuer, nil, zap.NewNop()),
		notes:     notes,
		buckets:   buckets,
		extractor: extractor,
		enqueuer:  enqueuer,
		ownerID:   uuid.New(),
	}
}

func ownedRequest(t *testing.T, ownerID uuid.UUID, method, target string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	return r.WithContext(request.WithOwner(r.Context(), ownerID))
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if !envelope.Success {
		t.Fatalf("response not successful: %v", envelope)
	}
	return envelope.Data
}

func TestCaptureNote_TextContent(t *testing.T) {
	t.Parallel()

	f := newNoteFixture(t, nil)

	var saved *models.Note
	f.notes.CreateFunc = func(ctx context.Context, n *models.Note) error {
		saved = n
		return nil
	}

	w := httptest.NewRecorder()
	f.handler.CaptureNote(w, ownedRequest(t, f.ownerID, "POST", "/api/v1/notes",
		map[string]string{"content": "Remember to water the ferns\nevery other day"}))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", w.Code, w.Body.String())
	}
	if saved == nil {
		t.Fatal("expected note creation")
	}
	if saved.Title != "Remember to water the ferns" {
		t.Errorf("title = %q, want first line", saved.Title)
	}
	if saved.BucketID != nil || saved.IsClassified {
		t.Error("captured note must land in the inbox unclassified")
	}
	if len(f.enqueuer.enqueued) != 1 || f.enqueuer.enqueued[0] != saved.ID {
		t.Error("expected an enrichment job for the saved note")
	}
}

func TestCaptureNote_ExtractionFailureSavesWithWarning(t *testing.T) {
	t.Parallel()

	f := newNoteFixture(t, nil)
	f.extractor.err = errors.New("403 paywall")

	var saved *models.Note
	f.notes.CreateFunc = func(ctx context.Context, n *models.Note) error {
		saved = n
		return nil
	}

	w := httptest.NewRecorder()
	f.handler.CaptureNote(w, ownedRequest(t, f.ownerID, "POST", "/api/v1/notes",
		map[string]string{"url": "https://example.com/locked-article"}))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 despite extraction failure", w.Code)
	}
	if saved == nil {
		t.Fatal("note must still be saved when extraction fails")
	}
	if saved.Title == "" {
		t.Error("expected a non-empty fallback title")
	}
	if saved.Content != "" {
		t.Errorf("content should stay empty on extraction failure, got %q", saved.Content)
	}
	if saved.BucketID != nil {
		t.Error("failed extraction must leave the note in the inbox")
	}
	if saved.Payload.URL != "https://example.com/locked-article" {
		t.Errorf("payload URL = %q, want the captured link", saved.Payload.URL)
	}

	data := decodeData(t, w)
	warning, _ := data["warning"].(string)
	if warning == "" {
		t.Error("expected a user-visible warning in the response")
	}
}

func TestCaptureNote_ExtractionSuccessFillsContent(t *testing.T) {
	t.Parallel()

	f := newNoteFixture(t, nil)
	f.extractor.result = &extract.Result{Title: "Garden Soil Basics", Content: "Loam drains well.", SiteName: "Gardenia"}

	var saved *models.Note
	f.notes.CreateFunc = func(ctx context.Context, n *models.Note) error {
		saved = n
		return nil
	}

	w := httptest.NewRecorder()
	f.handler.CaptureNote(w, ownedRequest(t, f.ownerID, "POST", "/api/v1/notes",
		map[string]string{"url": "https://gardenia.example/soil"}))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if saved.Title != "Garden Soil Basics" || saved.Content != "Loam drains well." {
		t.Errorf("extracted fields not applied: %+v", saved)
	}
	if saved.Source != models.NoteSourceArticle {
		t.Errorf("source = %q, want article for URL captures", saved.Source)
	}

	data := decodeData(t, w)
	if warning, _ := data["warning"].(string); warning != "" {
		t.Errorf("unexpected warning %q", warning)
	}
}

func TestCaptureNote_RejectsEmptyBody(t *testing.T) {
	t.Parallel()

	f := newNoteFixture(t, nil)
	w := httptest.NewRecorder()
	f.handler.CaptureNote(w, ownedRequest(t, f.ownerID, "POST", "/api/v1/notes", map[string]string{}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for empty capture", w.Code)
	}
}

func TestConfirmPlacement_SetsIsClassified(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	bucket := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Reading", Kind: models.BucketKindResource}
	f := newNoteFixture(t, []*models.Bucket{bucket})
	f.ownerID = ownerID

	noteID := uuid.New()
	suggested := bucket.ID
	f.notes.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Note, error) {
		return &models.Note{ID: noteID, OwnerID: ownerID, Title: "n", AISuggestedBucket: &suggested}, nil
	}

	var updated *models.Note
	f.notes.UpdateFunc = func(ctx context.Context, n *models.Note) error {
		updated = n
		return nil
	}

	r := ownedRequest(t, ownerID, "POST", "/api/v1/notes/"+noteID.String()+"/confirm", map[string]any{})
	r = mux.SetURLVars(r, map[string]string{"id": noteID.String()})
	w := httptest.NewRecorder()
	f.handler.ConfirmPlacement(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if updated == nil {
		t.Fatal("expected note update")
	}
	if !updated.IsClassified {
		t.Error("confirmation must set is_classified")
	}
	if updated.BucketID == nil || *updated.BucketID != bucket.ID {
		t.Error("confirmation without bucket_id should accept the AI suggestion")
	}
}

func TestConfirmPlacement_UnknownBucket(t *testing.T) {
	t.Parallel()

	f := newNoteFixture(t, nil)
	noteID := uuid.New()
	f.notes.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Note, error) {
		return &models.Note{ID: noteID, OwnerID: f.ownerID, Title: "n"}, nil
	}

	stranger := uuid.New()
	r := ownedRequest(t, f.ownerID, "POST", "/api/v1/notes/"+noteID.String()+"/confirm",
		map[string]any{"bucket_id": stranger})
	r = mux.SetURLVars(r, map[string]string{"id": noteID.String()})
	w := httptest.NewRecorder()
	f.handler.ConfirmPlacement(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown bucket", w.Code)
	}
}

func TestGetNote_OwnershipEnforced(t *testing.T) {
	t.Parallel()

	f := newNoteFixture(t, nil)
	noteID := uuid.New()
	f.notes.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Note, error) {
		return &models.Note{ID: noteID, OwnerID: uuid.New(), Title: "someone else's"}, nil
	}

	r := ownedRequest(t, f.ownerID, "GET", "/api/v1/notes/"+noteID.String(), nil)
	r = mux.SetURLVars(r, map[string]string{"id": noteID.String()})
	w := httptest.NewRecorder()
	f.handler.GetNote(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for foreign note", w.Code)
	}
}

func TestDeriveCaptureTitle(t *testing.T) {
	t.Parallel()

	long := ""
	for i := 0; i < 100; i++ {
		long += "x"
	}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "first line", content: "line one\nline two", want: "line one"},
		{name: "empty content", content: "", want: FallbackNoteTitle},
		{name: "whitespace only", content: "   \n  ", want: FallbackNoteTitle},
		{name: "long line truncated", content: long, want: long[:80] + "…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := deriveCaptureTitle(tt.content); got != tt.want {
				t.Errorf("deriveCaptureTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}
