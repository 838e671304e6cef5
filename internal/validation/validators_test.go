package validation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stashd/stash/internal/models"
)

func TestSanitizeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "trims whitespace", in: "  hello  ", want: "hello"},
		{name: "keeps newlines and tabs", in: "a\n\tb", want: "a\n\tb"},
		{name: "drops control characters", in: "a\x00b\x07c", want: "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.in); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateBucketKind(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{"project", "area", "resource", "archive"} {
		if err := ValidateBucketKind(kind); err != nil {
			t.Errorf("ValidateBucketKind(%q) = %v, want nil", kind, err)
		}
	}
	if err := ValidateBucketKind("folder"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestValidateSuggestionPayload(t *testing.T) {
	t.Parallel()

	bucketID := uuid.New()
	targetID := uuid.New()
	noteA, noteB := uuid.New(), uuid.New()

	tests := []struct {
		name    string
		kind    models.SuggestionKind
		payload models.SuggestionPayload
		wantErr bool
	}{
		{
			name: "valid split",
			kind: models.SuggestionSplitBucket,
			payload: models.SuggestionPayload{
				BucketID: &bucketID,
				Splits: []models.SplitGroup{
					{Name: "go", NoteIDs: []uuid.UUID{noteA, noteB}},
					{Name: "rust", NoteIDs: []uuid.UUID{uuid.New(), uuid.New()}},
				},
			},
		},
		{
			name: "split with single group",
			kind: models.SuggestionSplitBucket,
			payload: models.SuggestionPayload{
				BucketID: &bucketID,
				Splits:   []models.SplitGroup{{Name: "go", NoteIDs: []uuid.UUID{noteA, noteB}}},
			},
			wantErr: true,
		},
		{
			name: "split group too small",
			kind: models.SuggestionSplitBucket,
			payload: models.SuggestionPayload{
				BucketID: &bucketID,
				Splits: []models.SplitGroup{
					{Name: "go", NoteIDs: []uuid.UUID{noteA}},
					{Name: "rust", NoteIDs: []uuid.UUID{noteB, uuid.New()}},
				},
			},
			wantErr: true,
		},
		{
			name:    "valid merge",
			kind:    models.SuggestionMergeBuckets,
			payload: models.SuggestionPayload{BucketID: &bucketID, TargetID: &targetID},
		},
		{
			name:    "merge onto itself",
			kind:    models.SuggestionMergeBuckets,
			payload: models.SuggestionPayload{BucketID: &bucketID, TargetID: &bucketID},
			wantErr: true,
		},
		{
			name:    "rename without new name",
			kind:    models.SuggestionRenameBucket,
			payload: models.SuggestionPayload{BucketID: &bucketID},
			wantErr: true,
		},
		{
			name:    "valid archive",
			kind:    models.SuggestionArchiveProject,
			payload: models.SuggestionPayload{BucketID: &bucketID, DaysInactive: 45},
		},
		{
			name:    "archive without bucket",
			kind:    models.SuggestionArchiveProject,
			payload: models.SuggestionPayload{DaysInactive: 45},
			wantErr: true,
		},
		{
			name:    "reclassify without target",
			kind:    models.SuggestionReclassifyNote,
			payload: models.SuggestionPayload{NoteIDs: []uuid.UUID{noteA}},
			wantErr: true,
		},
		{
			name:    "valid create",
			kind:    models.SuggestionCreateBucket,
			payload: models.SuggestionPayload{BucketName: "Reading", ParentKind: models.BucketKindResource},
		},
		{
			name:    "create with bad kind",
			kind:    models.SuggestionCreateBucket,
			payload: models.SuggestionPayload{BucketName: "Reading", ParentKind: "folder"},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			kind:    "repaint_bucket",
			payload: models.SuggestionPayload{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSuggestionPayload(tt.kind, &tt.payload)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSuggestionPayload() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
