package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stashd/stash/internal/models"
)

// SuggestionRepository handles taxonomy suggestion database operations.
type SuggestionRepository struct {
	db *DB
}

// NewSuggestionRepository creates a new suggestion repository.
func NewSuggestionRepository(db *DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// Create inserts a pending suggestion. The dedup key is stored
// alongside so PendingExists can cheaply match kind + key.
func (r *SuggestionRepository) Create(ctx context.Context, s *models.Suggestion) error {
	payloadJSON, err := json.Marshal(s.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal suggestion payload: %w", err)
	}

	query := `
		INSERT INTO suggestions (id, owner_id, kind, payload, dedup_key, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING created_at, updated_at
	`
	now := time.Now()
	err = r.db.QueryRowContext(ctx, query,
		s.ID,
		s.OwnerID,
		s.Kind,
		payloadJSON,
		s.DedupKey(),
		models.SuggestionPending,
		now,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create suggestion: %w", err)
	}
	s.Status = models.SuggestionPending
	return nil
}

// PendingExists reports whether a pending suggestion of the same kind
// with the same dedup key already exists for the owner.
func (r *SuggestionRepository) PendingExists(ctx context.Context, ownerID uuid.UUID, kind models.SuggestionKind, dedupKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM suggestions
			WHERE owner_id = $1 AND kind = $2 AND dedup_key = $3 AND status = $4
		)
	`, ownerID, kind, dedupKey, models.SuggestionPending).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending suggestion: %w", err)
	}
	return exists, nil
}

// GetByID retrieves a suggestion by id.
func (r *SuggestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Suggestion, error) {
	query := `
		SELECT id, owner_id, kind, payload, status, created_at, updated_at
		FROM suggestions WHERE id = $1
	`
	s, err := scanSuggestion(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("suggestion not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestion: %w", err)
	}
	return s, nil
}

// ListPending retrieves the owner's pending suggestions, oldest first.
func (r *SuggestionRepository) ListPending(ctx context.Context, ownerID uuid.UUID) ([]*models.Suggestion, error) {
	query := `
		SELECT id, owner_id, kind, payload, status, created_at, updated_at
		FROM suggestions
		WHERE owner_id = $1 AND status = $2
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID, models.SuggestionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []*models.Suggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, rows.Err()
}

// UpdateStatus transitions a suggestion out of pending. Transitions
// from any other status are rejected: review decisions are final.
func (r *SuggestionRepository) UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, status models.SuggestionStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE suggestions
		SET status = $1, updated_at = $2
		WHERE id = $3 AND owner_id = $4 AND status = $5
	`, status, time.Now(), id, ownerID, models.SuggestionPending)
	if err != nil {
		return fmt.Errorf("failed to update suggestion status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("suggestion is not pending")
	}
	return nil
}

func scanSuggestion(scanner interface{ Scan(...any) error }) (*models.Suggestion, error) {
	s := &models.Suggestion{}
	var payloadJSON []byte
	err := scanner.Scan(&s.ID, &s.OwnerID, &s.Kind, &payloadJSON, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &s.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal suggestion payload: %w", err)
		}
	}
	return s, nil
}
