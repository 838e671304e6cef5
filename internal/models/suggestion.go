package models

import (
	"time"

	"github.com/google/uuid"
)

// SuggestionKind is the closed set of taxonomy change proposals.
type SuggestionKind string

const (
	SuggestionSplitBucket     SuggestionKind = "split_bucket"
	SuggestionMergeBuckets    SuggestionKind = "merge_buckets"
	SuggestionRenameBucket    SuggestionKind = "rename_bucket"
	SuggestionDeleteBucket    SuggestionKind = "delete_bucket"
	SuggestionArchiveProject  SuggestionKind = "archive_project"
	SuggestionReclassifyNote  SuggestionKind = "reclassify_note"
	SuggestionCreateBucket    SuggestionKind = "create_bucket"
	SuggestionCreateSubBucket SuggestionKind = "create_sub_bucket"
)

// SuggestionStatus tracks review state. Transitions out of pending
// happen only through explicit user action.
type SuggestionStatus string

const (
	SuggestionPending   SuggestionStatus = "pending"
	SuggestionAccepted  SuggestionStatus = "accepted"
	SuggestionDismissed SuggestionStatus = "dismissed"
)

// SplitGroup is one proposed sub-topic within a split_bucket payload.
type SplitGroup struct {
	Name    string      `json:"name"`
	NoteIDs []uuid.UUID `json:"note_ids"`
}

// SuggestionPayload is the kind-specific body of a suggestion. Which
// fields are required depends on Kind; ValidatePayload enforces the
// per-kind subset.
type SuggestionPayload struct {
	BucketID     *uuid.UUID   `json:"bucket_id,omitempty"`
	TargetID     *uuid.UUID   `json:"target_id,omitempty"`
	BucketName   string       `json:"bucket_name,omitempty"`
	NewName      string       `json:"new_name,omitempty"`
	ParentKind   BucketKind   `json:"parent_kind,omitempty"`
	NoteIDs      []uuid.UUID  `json:"note_ids,omitempty"`
	Splits       []SplitGroup `json:"splits,omitempty"`
	DaysInactive int          `json:"days_inactive,omitempty"`
	Reason       string       `json:"reason,omitempty"`
}

// Suggestion is a reviewable change proposal emitted by the maintenance
// engine or the classification path.
type Suggestion struct {
	ID        uuid.UUID         `json:"id"`
	OwnerID   uuid.UUID         `json:"owner_id"`
	Kind      SuggestionKind    `json:"kind"`
	Payload   SuggestionPayload `json:"payload"`
	Status    SuggestionStatus  `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ValidSuggestionKind reports whether k is a known suggestion kind.
func ValidSuggestionKind(k SuggestionKind) bool {
	switch k {
	case SuggestionSplitBucket, SuggestionMergeBuckets, SuggestionRenameBucket,
		SuggestionDeleteBucket, SuggestionArchiveProject, SuggestionReclassifyNote,
		SuggestionCreateBucket, SuggestionCreateSubBucket:
		return true
	default:
		return false
	}
}

// DedupKey returns the field that identifies "the same" pending
// suggestion for deduplication. Bucket-scoped kinds key on the bucket;
// note-scoped kinds key on the first note.
func (s *Suggestion) DedupKey() string {
	if s.Payload.BucketID != nil {
		return s.Payload.BucketID.String()
	}
	if len(s.Payload.NoteIDs) > 0 {
		return s.Payload.NoteIDs[0].String()
	}
	return s.Payload.BucketName
}
