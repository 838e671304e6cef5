package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaintenanceState tracks per-owner reorganization bookkeeping: the
// running note total and the total at which the last full analysis ran.
type MaintenanceState struct {
	OwnerID        uuid.UUID
	TotalNotes     int
	LastAnalyzedAt int // note total at the last reorganization run
	UpdatedAt      time.Time
}

// MaintenanceStateRepository handles maintenance watermark persistence.
type MaintenanceStateRepository struct {
	db *DB
}

// NewMaintenanceStateRepository creates a new maintenance state repository.
func NewMaintenanceStateRepository(db *DB) *MaintenanceStateRepository {
	return &MaintenanceStateRepository{db: db}
}

// Get retrieves the owner's maintenance state, or a zero state if none
// has been recorded yet.
func (r *MaintenanceStateRepository) Get(ctx context.Context, ownerID uuid.UUID) (*MaintenanceState, error) {
	s := &MaintenanceState{OwnerID: ownerID}
	err := r.db.QueryRowContext(ctx, `
		SELECT total_notes, last_analyzed_at, updated_at
		FROM maintenance_state WHERE owner_id = $1
	`, ownerID).Scan(&s.TotalNotes, &s.LastAnalyzedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get maintenance state: %w", err)
	}
	return s, nil
}

// Set upserts the owner's maintenance state.
func (r *MaintenanceStateRepository) Set(ctx context.Context, s *MaintenanceState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO maintenance_state (owner_id, total_notes, last_analyzed_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id) DO UPDATE SET
			total_notes = EXCLUDED.total_notes,
			last_analyzed_at = EXCLUDED.last_analyzed_at,
			updated_at = EXCLUDED.updated_at
	`, s.OwnerID, s.TotalNotes, s.LastAnalyzedAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set maintenance state: %w", err)
	}
	return nil
}

// IncrementTotal bumps the owner's running note total and returns the
// new value.
func (r *MaintenanceStateRepository) IncrementTotal(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO maintenance_state (owner_id, total_notes, last_analyzed_at, updated_at)
		VALUES ($1, 1, 0, $2)
		ON CONFLICT (owner_id) DO UPDATE SET
			total_notes = maintenance_state.total_notes + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING total_notes
	`, ownerID, time.Now()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to increment note total: %w", err)
	}
	return total, nil
}
