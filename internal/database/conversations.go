package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stashd/stash/internal/models"
)

// ConversationRepository persists conversation entries. The in-memory
// window in internal/conversation is authoritative; this table is the
// eventually-consistent backup written through the outbox.
type ConversationRepository struct {
	db *DB
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Append stores one conversation entry.
func (r *ConversationRepository) Append(ctx context.Context, e *models.ConversationEntry) error {
	noteIDs := make([]string, len(e.NoteIDs))
	for i, id := range e.NoteIDs {
		noteIDs[i] = id.String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversation_entries (owner_id, role, content, note_ids, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.OwnerID, e.Role, e.Content, pq.Array(noteIDs), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append conversation entry: %w", err)
	}
	return nil
}

// Recent returns the owner's most recent entries, oldest first, for
// rebuilding an in-memory window after restart.
func (r *ConversationRepository) Recent(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.ConversationEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT owner_id, role, content, note_ids, created_at
		FROM (
			SELECT owner_id, role, content, note_ids, created_at
			FROM conversation_entries
			WHERE owner_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.ConversationEntry
	for rows.Next() {
		e := &models.ConversationEntry{}
		var noteIDs pq.StringArray
		if err := rows.Scan(&e.OwnerID, &e.Role, &e.Content, &noteIDs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation entry: %w", err)
		}
		for _, s := range noteIDs {
			if id, err := uuid.Parse(s); err == nil {
				e.NoteIDs = append(e.NoteIDs, id)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
