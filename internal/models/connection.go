package models

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionKind distinguishes user-made links from AI-detected ones.
type ConnectionKind string

const (
	ConnectionKindExplicit   ConnectionKind = "explicit"
	ConnectionKindAIDetected ConnectionKind = "ai_detected"
)

// Connection is an unordered edge between two notes. Connections are
// never mutated; they are created once and cascade-delete with either
// endpoint.
type Connection struct {
	ID         uuid.UUID      `json:"id"`
	OwnerID    uuid.UUID      `json:"owner_id"`
	NoteA      uuid.UUID      `json:"note_a"`
	NoteB      uuid.UUID      `json:"note_b"`
	Kind       ConnectionKind `json:"kind"`
	Similarity *float64       `json:"similarity,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NormalizePair orders a note id pair so the unordered edge has a
// canonical storage form.
func NormalizePair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}
