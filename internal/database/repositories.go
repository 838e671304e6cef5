package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stashd/stash/internal/models"
)

// BucketRepositoryInterface defines the interface for bucket repository
// operations. Interfaces enable mock implementations in tests.
type BucketRepositoryInterface interface {
	Create(ctx context.Context, b *models.Bucket) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bucket, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Bucket, error)
	GetRootByKind(ctx context.Context, ownerID uuid.UUID, kind models.BucketKind) (*models.Bucket, error)
	EnsureRoots(ctx context.Context, ownerID uuid.UUID) error
	Update(ctx context.Context, b *models.Bucket) error
	DeleteSubtree(ctx context.Context, ownerID, bucketID uuid.UUID) (int64, error)
}

// NoteRepositoryInterface defines the interface for note repository operations.
type NoteRepositoryInterface interface {
	Create(ctx context.Context, n *models.Note) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error)
	Update(ctx context.Context, n *models.Note) error
	ListInbox(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.Note, error)
	ListByBucket(ctx context.Context, ownerID, bucketID uuid.UUID) ([]*models.Note, error)
	EmbeddedNotes(ctx context.Context, ownerID uuid.UUID) ([]NoteEmbedding, error)
	SearchLexical(ctx context.Context, ownerID uuid.UUID, query string, limit int) ([]*models.Note, []float64, error)
	NoteCounts(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]int, error)
	LastCaptures(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]time.Time, error)
	SampleTitles(ctx context.Context, ownerID, bucketID uuid.UUID, n int) ([]string, error)
	TotalCount(ctx context.Context, ownerID uuid.UUID) (int, error)
	IncrementConnectionCount(ctx context.Context, id uuid.UUID) error
}

// ConnectionRepositoryInterface defines the interface for connection
// repository operations.
type ConnectionRepositoryInterface interface {
	CreateIfAbsent(ctx context.Context, c *models.Connection) (bool, error)
	ListByNote(ctx context.Context, ownerID, noteID uuid.UUID) ([]*models.Connection, error)
}

// SuggestionRepositoryInterface defines the interface for suggestion
// repository operations.
type SuggestionRepositoryInterface interface {
	Create(ctx context.Context, s *models.Suggestion) error
	PendingExists(ctx context.Context, ownerID uuid.UUID, kind models.SuggestionKind, dedupKey string) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Suggestion, error)
	ListPending(ctx context.Context, ownerID uuid.UUID) ([]*models.Suggestion, error)
	UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, status models.SuggestionStatus) error
}

// ConversationRepositoryInterface defines the interface for conversation
// persistence.
type ConversationRepositoryInterface interface {
	Append(ctx context.Context, e *models.ConversationEntry) error
	Recent(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.ConversationEntry, error)
}

// MaintenanceStateRepositoryInterface defines the interface for
// maintenance watermark persistence.
type MaintenanceStateRepositoryInterface interface {
	Get(ctx context.Context, ownerID uuid.UUID) (*MaintenanceState, error)
	Set(ctx context.Context, s *MaintenanceState) error
	IncrementTotal(ctx context.Context, ownerID uuid.UUID) (int, error)
}

// Ensure concrete types implement the interfaces
var (
	_ BucketRepositoryInterface           = (*BucketRepository)(nil)
	_ NoteRepositoryInterface             = (*NoteRepository)(nil)
	_ ConnectionRepositoryInterface       = (*ConnectionRepository)(nil)
	_ SuggestionRepositoryInterface       = (*SuggestionRepository)(nil)
	_ ConversationRepositoryInterface     = (*ConversationRepository)(nil)
	_ MaintenanceStateRepositoryInterface = (*MaintenanceStateRepository)(nil)
)
