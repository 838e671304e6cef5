package maintenance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/outbox"
	"github.com/stashd/stash/internal/taxonomy"
	"github.com/stashd/stash/internal/testutil"
)

type engineFixture struct {
	engine      *Engine
	notes       *testutil.MockNoteRepo
	buckets     *testutil.MockBucketRepo
	suggestions *testutil.MockSuggestionRepo
	model       *testutil.MockLanguageModel
	created     []*models.Suggestion
}

func newEngineFixture(bucketList []*models.Bucket, counts map[uuid.UUID]int) *engineFixture {
	f := &engineFixture{
		notes: &testutil.MockNoteRepo{
			NoteCountsFunc: func(ctx context.Context, id uuid.UUID) (map[uuid.UUID]int, error) {
				return counts, nil
			},
		},
		buckets: &testutil.MockBucketRepo{
			ListByOwnerFunc: func(ctx context.Context, id uuid.UUID) ([]*models.Bucket, error) {
				return bucketList, nil
			},
		},
		model: &testutil.MockLanguageModel{},
	}
	f.suggestions = &testutil.MockSuggestionRepo{
		PendingExistsFunc: func(ctx context.Context, ownerID uuid.UUID, kind models.SuggestionKind, key string) (bool, error) {
			for _, s := range f.created {
				if s.Kind == kind && s.DedupKey() == key && s.Status == models.SuggestionPending {
					return true, nil
				}
			}
			return false, nil
		},
		CreateFunc: func(ctx context.Context, s *models.Suggestion) error {
			f.created = append(f.created, s)
			return nil
		},
	}
	tax := taxonomy.NewCache(f.buckets, f.notes, time.Minute)
	f.engine = NewEngine(f.buckets, f.notes, f.suggestions, tax, f.model, zap.NewNop())
	return f
}

func TestCheckStaleness(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	projectRoot := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Projects", Kind: models.BucketKindProject}
	stale := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Old Thing", Kind: models.BucketKindProject, ParentID: &projectRoot.ID}
	fresh := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Active Thing", Kind: models.BucketKindProject, ParentID: &projectRoot.ID}
	area := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Health", Kind: models.BucketKindArea}
	empty := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Never Used", Kind: models.BucketKindProject, ParentID: &projectRoot.ID}

	f := newEngineFixture([]*models.Bucket{projectRoot, stale, fresh, area, empty}, map[uuid.UUID]int{})
	f.notes.LastCapturesFunc = func(ctx context.Context, id uuid.UUID) (map[uuid.UUID]time.Time, error) {
		return map[uuid.UUID]time.Time{
			stale.ID: time.Now().Add(-45 * 24 * time.Hour),
			fresh.ID: time.Now().Add(-2 * 24 * time.Hour),
			area.ID:  time.Now().Add(-90 * 24 * time.Hour),
		}, nil
	}

	created, err := f.engine.CheckStaleness(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("CheckStaleness() error = %v", err)
	}
	if created != 1 {
		t.Fatalf("created %d suggestions, want 1", created)
	}
	s := f.created[0]
	if s.Kind != models.SuggestionArchiveProject {
		t.Errorf("Kind = %s, want archive_project", s.Kind)
	}
	if *s.Payload.BucketID != stale.ID {
		t.Errorf("BucketID = %s, want the stale project", s.Payload.BucketID)
	}
	if s.Payload.DaysInactive < 44 || s.Payload.DaysInactive > 46 {
		t.Errorf("DaysInactive = %d, want ~45", s.Payload.DaysInactive)
	}
}

func TestCheckStaleness_DeduplicatesPending(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	projectRoot := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Projects", Kind: models.BucketKindProject}
	stale := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Old Thing", Kind: models.BucketKindProject, ParentID: &projectRoot.ID}

	f := newEngineFixture([]*models.Bucket{projectRoot, stale}, map[uuid.UUID]int{})
	f.notes.LastCapturesFunc = func(ctx context.Context, id uuid.UUID) (map[uuid.UUID]time.Time, error) {
		return map[uuid.UUID]time.Time{stale.ID: time.Now().Add(-60 * 24 * time.Hour)}, nil
	}

	for i := 0; i < 2; i++ {
		if _, err := f.engine.CheckStaleness(context.Background(), ownerID); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}
	if len(f.created) != 1 {
		t.Errorf("created %d suggestions across two runs, want 1", len(f.created))
	}
}

func TestCheckBloat_EmitsValidSplit(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	root := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Resources", Kind: models.BucketKindResource}
	fat := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Reading", Kind: models.BucketKindResource, ParentID: &root.ID}

	var bucketNotes []*models.Note
	for i := 0; i < 16; i++ {
		bucketNotes = append(bucketNotes, &models.Note{
			ID: uuid.New(), OwnerID: ownerID, Title: fmt.Sprintf("note %d", i), BucketID: &fat.ID,
		})
	}

	f := newEngineFixture([]*models.Bucket{root, fat}, map[uuid.UUID]int{fat.ID: len(bucketNotes)})
	f.notes.ListByBucketFunc = func(ctx context.Context, owner, bucketID uuid.UUID) ([]*models.Note, error) {
		return bucketNotes, nil
	}
	f.model.CompleteFunc = func(ctx context.Context, system, prompt string) (string, error) {
		half := len(bucketNotes) / 2
		return clusterResponse(bucketNotes[:half], bucketNotes[half:]), nil
	}

	created, err := f.engine.CheckBloat(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("CheckBloat() error = %v", err)
	}
	if created != 1 {
		t.Fatalf("created %d suggestions, want 1", created)
	}
	s := f.created[0]
	if s.Kind != models.SuggestionSplitBucket {
		t.Errorf("Kind = %s, want split_bucket", s.Kind)
	}
	if len(s.Payload.Splits) != 2 {
		t.Errorf("Splits = %d groups, want 2", len(s.Payload.Splits))
	}
}

func TestCheckBloat_RejectsBrokenClusters(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	root := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Resources", Kind: models.BucketKindResource}
	fat := &models.Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "Reading", Kind: models.BucketKindResource, ParentID: &root.ID}

	var bucketNotes []*models.Note
	for i := 0; i < 16; i++ {
		bucketNotes = append(bucketNotes, &models.Note{ID: uuid.New(), OwnerID: ownerID, BucketID: &fat.ID})
	}

	tests := []struct {
		name     string
		response func() string
	}{
		{
			name: "note outside bucket",
			response: func() string {
				stranger := []*models.Note{{ID: uuid.New()}, {ID: uuid.New()}}
				return clusterResponse(bucketNotes[:14], stranger)
			},
		},
		{
			name: "note left unassigned",
			response: func() string {
				return clusterResponse(bucketNotes[:8], bucketNotes[8:15])
			},
		},
		{
			name: "note in two clusters",
			response: func() string {
				return clusterResponse(bucketNotes[:9], bucketNotes[8:])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture([]*models.Bucket{root, fat}, map[uuid.UUID]int{fat.ID: len(bucketNotes)})
			f.notes.ListByBucketFunc = func(ctx context.Context, owner, bucketID uuid.UUID) ([]*models.Note, error) {
				return bucketNotes, nil
			}
			f.model.CompleteFunc = func(ctx context.Context, system, prompt string) (string, error) {
				return tt.response(), nil
			}

			created, err := f.engine.CheckBloat(context.Background(), ownerID)
			if err != nil {
				t.Fatalf("CheckBloat() error = %v", err)
			}
			if created != 0 {
				t.Errorf("created %d suggestions from a broken proposal, want 0", created)
			}
		})
	}
}

func clusterResponse(a, b []*models.Note) string {
	ids := func(notes []*models.Note) string {
		out := ""
		for i, n := range notes {
			if i > 0 {
				out += ","
			}
			out += fmt.Sprintf("%q", n.ID)
		}
		return out
	}
	return fmt.Sprintf(`{"should_split":true,"clusters":[{"name":"first","note_ids":[%s]},{"name":"second","note_ids":[%s]}],"reason":"clusters cleanly"}`,
		ids(a), ids(b))
}

func TestShouldAnalyze(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total int
		want  bool
	}{
		{total: 1, want: false},
		{total: 29, want: false},
		{total: 30, want: true},
		{total: 31, want: false},
		{total: 79, want: false},
		{total: 80, want: true},
		{total: 130, want: true},
		{total: 131, want: false},
	}
	for _, tt := range tests {
		if got := ShouldAnalyze(tt.total); got != tt.want {
			t.Errorf("ShouldAnalyze(%d) = %v, want %v", tt.total, got, tt.want)
		}
	}
}

type fakeScheduler struct {
	mu    sync.Mutex
	fired []uuid.UUID
}

func (s *fakeScheduler) ScheduleMaintenance(ctx context.Context, ownerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired = append(s.fired, ownerID)
	return nil
}

func TestTrigger_FiresAtWatermarks(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	var mu sync.Mutex
	state := &database.MaintenanceState{OwnerID: ownerID}
	repo := &testutil.MockMaintenanceStateRepo{
		IncrementTotalFunc: func(ctx context.Context, id uuid.UUID) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			state.TotalNotes++
			return state.TotalNotes, nil
		},
		GetFunc: func(ctx context.Context, id uuid.UUID) (*database.MaintenanceState, error) {
			mu.Lock()
			defer mu.Unlock()
			snapshot := *state
			return &snapshot, nil
		},
		SetFunc: func(ctx context.Context, s *database.MaintenanceState) error {
			mu.Lock()
			defer mu.Unlock()
			state.LastAnalyzedAt = s.LastAnalyzedAt
			return nil
		},
	}

	scheduler := &fakeScheduler{}
	ob := outbox.New(zap.NewNop(), time.Millisecond)
	trigger := NewTrigger(repo, scheduler, ob, zap.NewNop())

	for i := 0; i < 80; i++ {
		trigger.NoteSaved(ownerID)
		ob.Wait() // keep increments ordered for a deterministic assertion
	}

	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	if len(scheduler.fired) != 2 {
		t.Fatalf("maintenance fired %d times over 80 saves, want 2 (at 30 and 80)", len(scheduler.fired))
	}
}
