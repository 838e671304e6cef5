package models

import (
	"time"

	"github.com/google/uuid"
)

// BucketKind represents the top-level category a bucket belongs to.
// Every bucket inherits the kind of its root ancestor; the four kinds
// form four independent trees per owner.
type BucketKind string

const (
	BucketKindProject  BucketKind = "project"
	BucketKindArea     BucketKind = "area"
	BucketKindResource BucketKind = "resource"
	BucketKindArchive  BucketKind = "archive"
)

// AllBucketKinds lists the four root kinds in display order.
var AllBucketKinds = []BucketKind{
	BucketKindProject,
	BucketKindArea,
	BucketKindResource,
	BucketKindArchive,
}

// Bucket is a node in an owner's taxonomy tree.
type Bucket struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Name        string     `json:"name"`
	Kind        BucketKind `json:"kind"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
	Description string     `json:"description,omitempty"`
	// Overview is AI-generated summary text for the bucket's contents.
	// OverviewNoteCount records the note count at generation time so
	// regeneration can be skipped until enough new notes arrive.
	Overview          string    `json:"overview,omitempty"`
	OverviewNoteCount int       `json:"overview_note_count"`
	Active            bool      `json:"active"`
	SortOrder         int       `json:"sort_order"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsRoot reports whether the bucket is one of the four per-kind roots.
// Roots have no parent and cannot be renamed or deleted.
func (b *Bucket) IsRoot() bool {
	return b.ParentID == nil
}

// ValidKind reports whether k is one of the four known kinds.
func ValidKind(k BucketKind) bool {
	switch k {
	case BucketKindProject, BucketKindArea, BucketKindResource, BucketKindArchive:
		return true
	default:
		return false
	}
}

// MaxBucketNameLength bounds bucket display names.
const MaxBucketNameLength = 100
