package models

import (
	"time"

	"github.com/google/uuid"
)

// NoteSource identifies the kind of content a note was captured from.
type NoteSource string

const (
	NoteSourceText    NoteSource = "text"
	NoteSourceArticle NoteSource = "article"
	NoteSourceTweet   NoteSource = "tweet"
	NoteSourceImage   NoteSource = "image"
	NoteSourceAudio   NoteSource = "audio"
	NoteSourceVideo   NoteSource = "video"
)

// SourcePayload carries source-kind-specific capture details.
type SourcePayload struct {
	URL      string `json:"url,omitempty"`
	Author   string `json:"author,omitempty"`
	SiteName string `json:"site_name,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// Note is a captured item. A nil BucketID means the note sits in the
// inbox. IsClassified is the single source of truth for "the user has
// confirmed placement": no AI path ever sets it true.
type Note struct {
	ID           uuid.UUID     `json:"id"`
	OwnerID      uuid.UUID     `json:"owner_id"`
	Title        string        `json:"title"`
	Content      string        `json:"content"`
	Summary      string        `json:"summary,omitempty"`
	Distillation string        `json:"distillation,omitempty"`
	Source       NoteSource    `json:"source"`
	Payload      SourcePayload `json:"payload"`
	Embedding    []float64     `json:"-"`

	BucketID          *uuid.UUID `json:"bucket_id,omitempty"`
	AISuggestedBucket *uuid.UUID `json:"ai_suggested_bucket,omitempty"`
	AIConfidence      *float64   `json:"ai_confidence,omitempty"`
	IsClassified      bool       `json:"is_classified"`

	Tags            []string  `json:"tags,omitempty"`
	ConnectionCount int       `json:"connection_count"`
	ViewCount       int       `json:"view_count"`
	CapturedAt      time.Time `json:"captured_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// InInbox reports whether the note has no bucket assignment.
func (n *Note) InInbox() bool {
	return n.BucketID == nil
}

// ValidSource reports whether s is a known note source.
func ValidSource(s NoteSource) bool {
	switch s {
	case NoteSourceText, NoteSourceArticle, NoteSourceTweet,
		NoteSourceImage, NoteSourceAudio, NoteSourceVideo:
		return true
	default:
		return false
	}
}
