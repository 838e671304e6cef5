// Package connections links semantically similar notes by cosine
// similarity over stored embeddings.
package connections

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/models"
)

const (
	// SimilarityThreshold is the minimum cosine similarity for a
	// persisted connection.
	SimilarityThreshold = 0.78

	// MaxConnectionsPerNote caps how many connections one detection
	// pass creates. Candidates are filtered by threshold first, then
	// the top K by similarity are kept.
	MaxConnectionsPerNote = 5
)

// Detector scans an owner's embedded notes for neighbors of a newly
// embedded note.
type Detector struct {
	notes       database.NoteRepositoryInterface
	connections database.ConnectionRepositoryInterface
	logger      *zap.Logger
}

// NewDetector creates a connection detector.
func NewDetector(notes database.NoteRepositoryInterface, connections database.ConnectionRepositoryInterface, logger *zap.Logger) *Detector {
	return &Detector{notes: notes, connections: connections, logger: logger}
}

// Match is one above-threshold neighbor.
type Match struct {
	NoteID     uuid.UUID
	Similarity float64
}

// Detect finds the note's nearest neighbors and persists a connection
// for each. It returns the matches it created connections for. Errors
// here are the caller's to log; the save path must never fail on them.
func (d *Detector) Detect(ctx context.Context, ownerID, noteID uuid.UUID, embedding []float64) ([]Match, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	candidates, err := d.notes.EmbeddedNotes(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	matches := TopMatches(noteID, embedding, candidates)
	var created []Match
	for _, m := range matches {
		a, b := models.NormalizePair(noteID, m.NoteID)
		sim := m.Similarity
		inserted, err := d.connections.CreateIfAbsent(ctx, &models.Connection{
			ID:         uuid.New(),
			OwnerID:    ownerID,
			NoteA:      a,
			NoteB:      b,
			Kind:       models.ConnectionKindAIDetected,
			Similarity: &sim,
		})
		if err != nil {
			d.logger.Warn("failed to persist connection",
				zap.String("note_id", noteID.String()),
				zap.String("neighbor_id", m.NoteID.String()),
				zap.Error(err))
			continue
		}
		if !inserted {
			continue
		}
		created = append(created, m)
		for _, id := range []uuid.UUID{noteID, m.NoteID} {
			if err := d.notes.IncrementConnectionCount(ctx, id); err != nil {
				d.logger.Warn("failed to bump connection count",
					zap.String("note_id", id.String()), zap.Error(err))
			}
		}
	}
	return created, nil
}

// TopMatches scores every candidate against the embedding, drops the
// note itself and everything below the threshold, and returns at most
// MaxConnectionsPerNote matches ordered by descending similarity.
func TopMatches(noteID uuid.UUID, embedding []float64, candidates []database.NoteEmbedding) []Match {
	var matches []Match
	for _, c := range candidates {
		if c.NoteID == noteID {
			continue
		}
		sim := CosineSimilarity(embedding, c.Embedding)
		if sim >= SimilarityThreshold {
			matches = append(matches, Match{NoteID: c.NoteID, Similarity: sim})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > MaxConnectionsPerNote {
		matches = matches[:MaxConnectionsPerNote]
	}
	return matches
}

// CosineSimilarity returns the cosine of the angle between a and b,
// or 0 when either vector is empty, zero, or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
