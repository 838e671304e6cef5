package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stashd/stash/internal/models"
)

// NoteRepository handles note database operations.
type NoteRepository struct {
	db *DB
}

// NewNoteRepository creates a new note repository.
func NewNoteRepository(db *DB) *NoteRepository {
	return &NoteRepository{db: db}
}

const noteColumns = `id, owner_id, title, content, summary, distillation,
	source, payload, embedding, bucket_id, ai_suggested_bucket, ai_confidence,
	is_classified, tags, connection_count, view_count, captured_at, updated_at`

func scanNote(scanner interface{ Scan(...any) error }) (*models.Note, error) {
	n := &models.Note{}
	var payloadJSON []byte
	var embedding pq.Float64Array
	var bucketID, suggestedBucket uuid.NullUUID
	var confidence sql.NullFloat64
	var summary, distillation sql.NullString
	var tags pq.StringArray

	err := scanner.Scan(
		&n.ID,
		&n.OwnerID,
		&n.Title,
		&n.Content,
		&summary,
		&distillation,
		&n.Source,
		&payloadJSON,
		&embedding,
		&bucketID,
		&suggestedBucket,
		&confidence,
		&n.IsClassified,
		&tags,
		&n.ConnectionCount,
		&n.ViewCount,
		&n.CapturedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Summary = summary.String
	n.Distillation = distillation.String
	n.Embedding = embedding
	n.Tags = tags
	if bucketID.Valid {
		n.BucketID = &bucketID.UUID
	}
	if suggestedBucket.Valid {
		n.AISuggestedBucket = &suggestedBucket.UUID
	}
	if confidence.Valid {
		n.AIConfidence = &confidence.Float64
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &n.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal note payload: %w", err)
		}
	}
	return n, nil
}

// Create inserts a new note.
func (r *NoteRepository) Create(ctx context.Context, n *models.Note) error {
	payloadJSON, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal note payload: %w", err)
	}

	query := `
		INSERT INTO notes (id, owner_id, title, content, summary, distillation,
			source, payload, embedding, bucket_id, ai_suggested_bucket, ai_confidence,
			is_classified, tags, connection_count, view_count, captured_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
		RETURNING captured_at, updated_at
	`
	now := time.Now()
	err = r.db.QueryRowContext(ctx, query,
		n.ID,
		n.OwnerID,
		n.Title,
		n.Content,
		n.Summary,
		n.Distillation,
		n.Source,
		payloadJSON,
		pq.Float64Array(n.Embedding),
		n.BucketID,
		n.AISuggestedBucket,
		n.AIConfidence,
		n.IsClassified,
		pq.StringArray(n.Tags),
		n.ConnectionCount,
		n.ViewCount,
		now,
	).Scan(&n.CapturedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

// GetByID retrieves a note by id.
func (r *NoteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = $1`
	n, err := scanNote(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return n, nil
}

// Update persists mutable note fields.
func (r *NoteRepository) Update(ctx context.Context, n *models.Note) error {
	payloadJSON, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal note payload: %w", err)
	}

	query := `
		UPDATE notes
		SET title = $1, content = $2, summary = $3, distillation = $4,
			payload = $5, embedding = $6, bucket_id = $7, ai_suggested_bucket = $8,
			ai_confidence = $9, is_classified = $10, tags = $11,
			connection_count = $12, view_count = $13, updated_at = $14
		WHERE id = $15 AND owner_id = $16
	`
	result, err := r.db.ExecContext(ctx, query,
		n.Title,
		n.Content,
		n.Summary,
		n.Distillation,
		payloadJSON,
		pq.Float64Array(n.Embedding),
		n.BucketID,
		n.AISuggestedBucket,
		n.AIConfidence,
		n.IsClassified,
		pq.StringArray(n.Tags),
		n.ConnectionCount,
		n.ViewCount,
		time.Now(),
		n.ID,
		n.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("note not found")
	}
	return nil
}

// ListInbox retrieves the owner's unfiled notes, newest first.
func (r *NoteRepository) ListInbox(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.Note, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + noteColumns + `
		FROM notes
		WHERE owner_id = $1 AND bucket_id IS NULL
		ORDER BY captured_at DESC
		LIMIT $2
	`
	return r.queryNotes(ctx, query, ownerID, limit)
}

// ListByBucket retrieves the notes filed in a bucket, newest first.
func (r *NoteRepository) ListByBucket(ctx context.Context, ownerID, bucketID uuid.UUID) ([]*models.Note, error) {
	query := `
		SELECT ` + noteColumns + `
		FROM notes
		WHERE owner_id = $1 AND bucket_id = $2
		ORDER BY captured_at DESC
	`
	return r.queryNotes(ctx, query, ownerID, bucketID)
}

func (r *NoteRepository) queryNotes(ctx context.Context, query string, args ...any) ([]*models.Note, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// NoteEmbedding is a projection used by the connection detector.
type NoteEmbedding struct {
	NoteID    uuid.UUID
	Embedding []float64
}

// EmbeddedNotes returns ids and embeddings for every note of the owner
// that carries an embedding vector.
func (r *NoteRepository) EmbeddedNotes(ctx context.Context, ownerID uuid.UUID) ([]NoteEmbedding, error) {
	query := `
		SELECT id, embedding
		FROM notes
		WHERE owner_id = $1 AND embedding IS NOT NULL AND array_length(embedding, 1) > 0
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query embedded notes: %w", err)
	}
	defer rows.Close()

	var out []NoteEmbedding
	for rows.Next() {
		var ne NoteEmbedding
		var embedding pq.Float64Array
		if err := rows.Scan(&ne.NoteID, &embedding); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		ne.Embedding = embedding
		out = append(out, ne)
	}
	return out, rows.Err()
}

// SearchLexical runs full-text search over titles, content and
// summaries and returns candidate notes with their lexical rank. The
// caller blends these with embedding similarity for hybrid results.
func (r *NoteRepository) SearchLexical(ctx context.Context, ownerID uuid.UUID, query string, limit int) ([]*models.Note, []float64, error) {
	if limit <= 0 {
		limit = 20
	}
	sqlQuery := `
		SELECT ` + noteColumns + `,
			ts_rank(
				to_tsvector('simple', title || ' ' || content || ' ' || coalesce(summary, '')),
				plainto_tsquery('simple', $2)
			) AS rank
		FROM notes
		WHERE owner_id = $1
			AND to_tsvector('simple', title || ' ' || content || ' ' || coalesce(summary, ''))
				@@ plainto_tsquery('simple', $2)
		ORDER BY rank DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, sqlQuery, ownerID, query, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to search notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.Note
	var ranks []float64
	for rows.Next() {
		n := &models.Note{}
		var payloadJSON []byte
		var embedding pq.Float64Array
		var bucketID, suggestedBucket uuid.NullUUID
		var confidence sql.NullFloat64
		var summary, distillation sql.NullString
		var tags pq.StringArray
		var rank float64

		err := rows.Scan(
			&n.ID, &n.OwnerID, &n.Title, &n.Content, &summary, &distillation,
			&n.Source, &payloadJSON, &embedding, &bucketID, &suggestedBucket,
			&confidence, &n.IsClassified, &tags, &n.ConnectionCount,
			&n.ViewCount, &n.CapturedAt, &n.UpdatedAt, &rank,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		n.Summary = summary.String
		n.Distillation = distillation.String
		n.Embedding = embedding
		n.Tags = tags
		if bucketID.Valid {
			n.BucketID = &bucketID.UUID
		}
		if suggestedBucket.Valid {
			n.AISuggestedBucket = &suggestedBucket.UUID
		}
		if confidence.Valid {
			n.AIConfidence = &confidence.Float64
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &n.Payload); err != nil {
				return nil, nil, fmt.Errorf("failed to unmarshal note payload: %w", err)
			}
		}
		notes = append(notes, n)
		ranks = append(ranks, rank)
	}
	return notes, ranks, rows.Err()
}

// NoteCounts returns the number of notes filed directly in each bucket.
func (r *NoteRepository) NoteCounts(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]int, error) {
	query := `
		SELECT bucket_id, COUNT(*)
		FROM notes
		WHERE owner_id = $1 AND bucket_id IS NOT NULL
		GROUP BY bucket_id
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate note counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var bucketID uuid.UUID
		var count int
		if err := rows.Scan(&bucketID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan note count: %w", err)
		}
		counts[bucketID] = count
	}
	return counts, rows.Err()
}

// LastCaptures returns the most recent capture time per bucket.
func (r *NoteRepository) LastCaptures(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	query := `
		SELECT bucket_id, MAX(captured_at)
		FROM notes
		WHERE owner_id = $1 AND bucket_id IS NOT NULL
		GROUP BY bucket_id
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate last captures: %w", err)
	}
	defer rows.Close()

	captures := make(map[uuid.UUID]time.Time)
	for rows.Next() {
		var bucketID uuid.UUID
		var last time.Time
		if err := rows.Scan(&bucketID, &last); err != nil {
			return nil, fmt.Errorf("failed to scan last capture: %w", err)
		}
		captures[bucketID] = last
	}
	return captures, rows.Err()
}

// SampleTitles returns up to n recent note titles from a bucket.
func (r *NoteRepository) SampleTitles(ctx context.Context, ownerID, bucketID uuid.UUID, n int) ([]string, error) {
	query := `
		SELECT title FROM notes
		WHERE owner_id = $1 AND bucket_id = $2
		ORDER BY captured_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID, bucketID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to sample titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// TotalCount returns the owner's total note count.
func (r *NoteRepository) TotalCount(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE owner_id = $1`, ownerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return count, nil
}

// IncrementConnectionCount bumps a note's connection counter.
func (r *NoteRepository) IncrementConnectionCount(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notes SET connection_count = connection_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment connection count: %w", err)
	}
	return nil
}
