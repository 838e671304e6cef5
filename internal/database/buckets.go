package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stashd/stash/internal/models"
)

// BucketRepository handles taxonomy bucket database operations.
type BucketRepository struct {
	db *DB
}

// NewBucketRepository creates a new bucket repository.
func NewBucketRepository(db *DB) *BucketRepository {
	return &BucketRepository{db: db}
}

const bucketColumns = `id, owner_id, name, kind, parent_id, description,
	overview, overview_note_count, active, sort_order, created_at, updated_at`

func scanBucket(scanner interface{ Scan(...any) error }) (*models.Bucket, error) {
	b := &models.Bucket{}
	var parentID uuid.NullUUID
	var description, overview sql.NullString
	err := scanner.Scan(
		&b.ID,
		&b.OwnerID,
		&b.Name,
		&b.Kind,
		&parentID,
		&description,
		&overview,
		&b.OverviewNoteCount,
		&b.Active,
		&b.SortOrder,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		b.ParentID = &parentID.UUID
	}
	b.Description = description.String
	b.Overview = overview.String
	return b, nil
}

// Create inserts a new bucket.
func (r *BucketRepository) Create(ctx context.Context, b *models.Bucket) error {
	query := `
		INSERT INTO buckets (id, owner_id, name, kind, parent_id, description,
			overview, overview_note_count, active, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		b.ID,
		b.OwnerID,
		b.Name,
		b.Kind,
		b.ParentID,
		b.Description,
		b.Overview,
		b.OverviewNoteCount,
		b.Active,
		b.SortOrder,
		now,
		now,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// GetByID retrieves a bucket by id.
func (r *BucketRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM buckets WHERE id = $1`
	b, err := scanBucket(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bucket not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}
	return b, nil
}

// ListByOwner retrieves every bucket belonging to an owner, roots first.
func (r *BucketRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Bucket, error) {
	query := `
		SELECT ` + bucketColumns + `
		FROM buckets
		WHERE owner_id = $1
		ORDER BY parent_id NULLS FIRST, sort_order, created_at
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}
	defer rows.Close()

	var buckets []*models.Bucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// GetRootByKind returns the owner's root bucket for a kind.
func (r *BucketRepository) GetRootByKind(ctx context.Context, ownerID uuid.UUID, kind models.BucketKind) (*models.Bucket, error) {
	query := `
		SELECT ` + bucketColumns + `
		FROM buckets
		WHERE owner_id = $1 AND kind = $2 AND parent_id IS NULL
	`
	b, err := scanBucket(r.db.QueryRowContext(ctx, query, ownerID, kind))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("root bucket not found for kind %s: %w", kind, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get root bucket: %w", err)
	}
	return b, nil
}

// EnsureRoots creates the four per-kind root buckets for an owner if
// they do not exist yet.
func (r *BucketRepository) EnsureRoots(ctx context.Context, ownerID uuid.UUID) error {
	query := `
		INSERT INTO buckets (id, owner_id, name, kind, parent_id, description,
			overview, overview_note_count, active, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, '', '', 0, TRUE, $5, $6, $6)
		ON CONFLICT (owner_id, kind) WHERE parent_id IS NULL DO NOTHING
	`
	now := time.Now()
	for i, kind := range models.AllBucketKinds {
		name := rootDisplayName(kind)
		if _, err := r.db.ExecContext(ctx, query, uuid.New(), ownerID, name, kind, i, now); err != nil {
			return fmt.Errorf("failed to ensure root bucket %s: %w", kind, err)
		}
	}
	return nil
}

func rootDisplayName(kind models.BucketKind) string {
	switch kind {
	case models.BucketKindProject:
		return "Projects"
	case models.BucketKindArea:
		return "Areas"
	case models.BucketKindResource:
		return "Resources"
	case models.BucketKindArchive:
		return "Archive"
	default:
		return string(kind)
	}
}

// Update persists mutable bucket fields.
func (r *BucketRepository) Update(ctx context.Context, b *models.Bucket) error {
	query := `
		UPDATE buckets
		SET name = $1, parent_id = $2, description = $3, overview = $4,
			overview_note_count = $5, active = $6, sort_order = $7, updated_at = $8
		WHERE id = $9 AND owner_id = $10
	`
	result, err := r.db.ExecContext(ctx, query,
		b.Name,
		b.ParentID,
		b.Description,
		b.Overview,
		b.OverviewNoteCount,
		b.Active,
		b.SortOrder,
		time.Now(),
		b.ID,
		b.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bucket: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("bucket not found")
	}
	return nil
}

// CollectDescendants returns the ids of root and every bucket below it,
// computed by breadth-first walk over the parent links of the given
// bucket list. It is the single descendant-collection helper used by
// deletion and the cache.
func CollectDescendants(buckets []*models.Bucket, rootID uuid.UUID) []uuid.UUID {
	children := make(map[uuid.UUID][]uuid.UUID, len(buckets))
	for _, b := range buckets {
		if b.ParentID != nil {
			children[*b.ParentID] = append(children[*b.ParentID], b.ID)
		}
	}

	ids := []uuid.UUID{rootID}
	for i := 0; i < len(ids); i++ {
		ids = append(ids, children[ids[i]]...)
	}
	return ids
}

// DeleteSubtree deletes a bucket and all its descendants. Notes filed
// anywhere in the subtree fall back to the inbox rather than being
// deleted. Returns the number of notes reset.
func (r *BucketRepository) DeleteSubtree(ctx context.Context, ownerID, bucketID uuid.UUID) (int64, error) {
	buckets, err := r.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	ids := CollectDescendants(buckets, bucketID)

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE notes
		SET bucket_id = NULL, is_classified = FALSE, updated_at = $1
		WHERE owner_id = $2 AND bucket_id = ANY($3::uuid[])
	`, time.Now(), ownerID, pq.Array(idStrings))
	if err != nil {
		return 0, fmt.Errorf("failed to reset notes to inbox: %w", err)
	}
	resetCount, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset notes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM buckets WHERE owner_id = $1 AND id = ANY($2::uuid[])
	`, ownerID, pq.Array(idStrings)); err != nil {
		return 0, fmt.Errorf("failed to delete bucket subtree: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bucket deletion: %w", err)
	}
	return resetCount, nil
}
