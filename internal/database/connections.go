package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stashd/stash/internal/models"
)

// ConnectionRepository handles note connection database operations.
type ConnectionRepository struct {
	db *DB
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// CreateIfAbsent inserts a connection between two notes unless the
// unordered pair already exists. Returns true when a row was created.
func (r *ConnectionRepository) CreateIfAbsent(ctx context.Context, c *models.Connection) (bool, error) {
	a, b := models.NormalizePair(c.NoteA, c.NoteB)
	c.NoteA, c.NoteB = a, b

	query := `
		INSERT INTO connections (id, owner_id, note_a, note_b, kind, similarity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (note_a, note_b) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.OwnerID,
		c.NoteA,
		c.NoteB,
		c.Kind,
		c.Similarity,
		time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create connection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check connection insert: %w", err)
	}
	return affected > 0, nil
}

// ListByNote returns every connection touching a note.
func (r *ConnectionRepository) ListByNote(ctx context.Context, ownerID, noteID uuid.UUID) ([]*models.Connection, error) {
	query := `
		SELECT id, owner_id, note_a, note_b, kind, similarity, created_at
		FROM connections
		WHERE owner_id = $1 AND (note_a = $2 OR note_b = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		c := &models.Connection{}
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.NoteA, &c.NoteB, &c.Kind, &c.Similarity, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		connections = append(connections, c)
	}
	return connections, rows.Err()
}
