// Package testutil provides function-field mock implementations of the
// repository and language-model interfaces for use in tests.
package testutil

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/services/ai"
)

// ErrNotImplemented is returned by mock methods without a configured func.
var ErrNotImplemented = errors.New("not implemented in mock")

// MockBucketRepo is a function-field mock of BucketRepositoryInterface.
type MockBucketRepo struct {
	CreateFunc        func(ctx context.Context, b *models.Bucket) error
	GetByIDFunc       func(ctx context.Context, id uuid.UUID) (*models.Bucket, error)
	ListByOwnerFunc   func(ctx context.Context, ownerID uuid.UUID) ([]*models.Bucket, error)
	GetRootByKindFunc func(ctx context.Context, ownerID uuid.UUID, kind models.BucketKind) (*models.Bucket, error)
	EnsureRootsFunc   func(ctx context.Context, ownerID uuid.UUID) error
	UpdateFunc        func(ctx context.Context, b *models.Bucket) error
	DeleteSubtreeFunc func(ctx context.Context, ownerID, bucketID uuid.UUID) (int64, error)
}

var _ database.BucketRepositoryInterface = (*MockBucketRepo)(nil)

func (m *MockBucketRepo) Create(ctx context.Context, b *models.Bucket) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, b)
	}
	return ErrNotImplemented
}

func (m *MockBucketRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Bucket, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, ErrNotImplemented
}

func (m *MockBucketRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Bucket, error) {
	if m.ListByOwnerFunc != nil {
		return m.ListByOwnerFunc(ctx, ownerID)
	}
	return nil, ErrNotImplemented
}

func (m *MockBucketRepo) GetRootByKind(ctx context.Context, ownerID uuid.UUID, kind models.BucketKind) (*models.Bucket, error) {
	if m.GetRootByKindFunc != nil {
		return m.GetRootByKindFunc(ctx, ownerID, kind)
	}
	return nil, ErrNotImplemented
}

func (m *MockBucketRepo) EnsureRoots(ctx context.Context, ownerID uuid.UUID) error {
	if m.EnsureRootsFunc != nil {
		return m.EnsureRootsFunc(ctx, ownerID)
	}
	return ErrNotImplemented
}

func (m *MockBucketRepo) Update(ctx context.Context, b *models.Bucket) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, b)
	}
	return ErrNotImplemented
}

func (m *MockBucketRepo) DeleteSubtree(ctx context.Context, ownerID, bucketID uuid.UUID) (int64, error) {
	if m.DeleteSubtreeFunc != nil {
		return m.DeleteSubtreeFunc(ctx, ownerID, bucketID)
	}
	return 0, ErrNotImplemented
}

// MockNoteRepo is a function-field mock of NoteRepositoryInterface.
type MockNoteRepo struct {
	CreateFunc                   func(ctx context.Context, n *models.Note) error
	GetByIDFunc                  func(ctx context.Context, id uuid.UUID) (*models.Note, error)
	UpdateFunc                   func(ctx context.Context, n *models.Note) error
	ListInboxFunc                func(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.Note, error)
	ListByBucketFunc             func(ctx context.Context, ownerID, bucketID uuid.UUID) ([]*models.Note, error)
	EmbeddedNotesFunc            func(ctx context.Context, ownerID uuid.UUID) ([]database.NoteEmbedding, error)
	SearchLexicalFunc            func(ctx context.Context, ownerID uuid.UUID, query string, limit int) ([]*models.Note, []float64, error)
	NoteCountsFunc               func(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]int, error)
	LastCapturesFunc             func(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]time.Time, error)
	SampleTitlesFunc             func(ctx context.Context, ownerID, bucketID uuid.UUID, n int) ([]string, error)
	TotalCountFunc               func(ctx context.Context, ownerID uuid.UUID) (int, error)
	IncrementConnectionCountFunc func(ctx context.Context, id uuid.UUID) error
}

var _ database.NoteRepositoryInterface = (*MockNoteRepo)(nil)

func (m *MockNoteRepo) Create(ctx context.Context, n *models.Note) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, n)
	}
	return ErrNotImplemented
}

func (m *MockNoteRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, ErrNotImplemented
}

func (m *MockNoteRepo) Update(ctx context.Context, n *models.Note) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, n)
	}
	return ErrNotImplemented
}

func (m *MockNoteRepo) ListInbox(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.Note, error) {
	if m.ListInboxFunc != nil {
		return m.ListInboxFunc(ctx, ownerID, limit)
	}
	return nil, ErrNotImplemented
}

func (m *MockNoteRepo) ListByBucket(ctx context.Context, ownerID, bucketID uuid.UUID) ([]*models.Note, error) {
	if m.ListByBucketFunc != nil {
		return m.ListByBucketFunc(ctx, ownerID, bucketID)
	}
	return nil, ErrNotImplemented
}

func (m *MockNoteRepo) EmbeddedNotes(ctx context.Context, ownerID uuid.UUID) ([]database.NoteEmbedding, error) {
	if m.EmbeddedNotesFunc != nil {
		return m.EmbeddedNotesFunc(ctx, ownerID)
	}
	return nil, ErrNotImplemented
}

func (m *MockNoteRepo) SearchLexical(ctx context.Context, ownerID uuid.UUID, query string, limit int) ([]*models.Note, []float64, error) {
	if m.SearchLexicalFunc != nil {
		return m.SearchLexicalFunc(ctx, ownerID, query, limit)
	}
	return nil, nil, ErrNotImplemented
}

func (m *MockNoteRepo) NoteCounts(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]int, error) {
	if m.NoteCountsFunc != nil {
		return m.NoteCountsFunc(ctx, ownerID)
	}
	return nil, ErrNotImplemented
}

func (m *MockNoteRepo) LastCaptures(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	if m.LastCapturesFunc != nil {
		return m.LastCapturesFunc(ctx, ownerID)
	}
	return nil, ErrNotImplemented
}

func (m *MockNoteRepo) SampleTitles(ctx context.Context, ownerID, bucketID uuid.UUID, n int) ([]string, error) {
	if m.SampleTitlesFunc != nil {
		return m.SampleTitlesFunc(ctx, ownerID, bucketID, n)
	}
	return nil, ErrNotImplemented
}

func (m *MockNoteRepo) TotalCount(ctx context.Context, ownerID uuid.UUID) (int, error) {
	if m.TotalCountFunc != nil {
		return m.TotalCountFunc(ctx, ownerID)
	}
	return 0, ErrNotImplemented
}

func (m *MockNoteRepo) IncrementConnectionCount(ctx context.Context, id uuid.UUID) error {
	if m.IncrementConnectionCountFunc != nil {
		return m.IncrementConnectionCountFunc(ctx, id)
	}
	return ErrNotImplemented
}

// MockConnectionRepo is a function-field mock of ConnectionRepositoryInterface.
type MockConnectionRepo struct {
	CreateIfAbsentFunc func(ctx context.Context, c *models.Connection) (bool, error)
	ListByNoteFunc     func(ctx context.Context, ownerID, noteID uuid.UUID) ([]*models.Connection, error)
}

var _ database.ConnectionRepositoryInterface = (*MockConnectionRepo)(nil)

func (m *MockConnectionRepo) CreateIfAbsent(ctx context.Context, c *models.Connection) (bool, error) {
	if m.CreateIfAbsentFunc != nil {
		return m.CreateIfAbsentFunc(ctx, c)
	}
	return false, ErrNotImplemented
}

func (m *MockConnectionRepo) ListByNote(ctx context.Context, ownerID, noteID uuid.UUID) ([]*models.Connection, error) {
	if m.ListByNoteFunc != nil {
		return m.ListByNoteFunc(ctx, ownerID, noteID)
	}
	return nil, ErrNotImplemented
}

// MockSuggestionRepo is a function-field mock of SuggestionRepositoryInterface.
type MockSuggestionRepo struct {
	CreateFunc        func(ctx context.Context, s *models.Suggestion) error
	PendingExistsFunc func(ctx context.Context, ownerID uuid.UUID, kind models.SuggestionKind, dedupKey string) (bool, error)
	GetByIDFunc       func(ctx context.Context, id uuid.UUID) (*models.Suggestion, error)
	ListPendingFunc   func(ctx context.Context, ownerID uuid.UUID) ([]*models.Suggestion, error)
	UpdateStatusFunc  func(ctx context.Context, ownerID, id uuid.UUID, status models.SuggestionStatus) error
}

var _ database.SuggestionRepositoryInterface = (*MockSuggestionRepo)(nil)

func (m *MockSuggestionRepo) Create(ctx context.Context, s *models.Suggestion) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	return ErrNotImplemented
}

func (m *MockSuggestionRepo) PendingExists(ctx context.Context, ownerID uuid.UUID, kind models.SuggestionKind, dedupKey string) (bool, error) {
	if m.PendingExistsFunc != nil {
		return m.PendingExistsFunc(ctx, ownerID, kind, dedupKey)
	}
	return false, ErrNotImplemented
}

func (m *MockSuggestionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Suggestion, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, ErrNotImplemented
}

func (m *MockSuggestionRepo) ListPending(ctx context.Context, ownerID uuid.UUID) ([]*models.Suggestion, error) {
	if m.ListPendingFunc != nil {
		return m.ListPendingFunc(ctx, ownerID)
	}
	return nil, ErrNotImplemented
}

func (m *MockSuggestionRepo) UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, status models.SuggestionStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, ownerID, id, status)
	}
	return ErrNotImplemented
}

// MockConversationRepo is a function-field mock of ConversationRepositoryInterface.
type MockConversationRepo struct {
	AppendFunc func(ctx context.Context, e *models.ConversationEntry) error
	RecentFunc func(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.ConversationEntry, error)
}

var _ database.ConversationRepositoryInterface = (*MockConversationRepo)(nil)

func (m *MockConversationRepo) Append(ctx context.Context, e *models.ConversationEntry) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, e)
	}
	return ErrNotImplemented
}

func (m *MockConversationRepo) Recent(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.ConversationEntry, error) {
	if m.RecentFunc != nil {
		return m.RecentFunc(ctx, ownerID, limit)
	}
	return nil, ErrNotImplemented
}

// MockMaintenanceStateRepo is a function-field mock of
// MaintenanceStateRepositoryInterface.
type MockMaintenanceStateRepo struct {
	GetFunc            func(ctx context.Context, ownerID uuid.UUID) (*database.MaintenanceState, error)
	SetFunc            func(ctx context.Context, s *database.MaintenanceState) error
	IncrementTotalFunc func(ctx context.Context, ownerID uuid.UUID) (int, error)
}

var _ database.MaintenanceStateRepositoryInterface = (*MockMaintenanceStateRepo)(nil)

func (m *MockMaintenanceStateRepo) Get(ctx context.Context, ownerID uuid.UUID) (*database.MaintenanceState, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, ownerID)
	}
	return nil, ErrNotImplemented
}

func (m *MockMaintenanceStateRepo) Set(ctx context.Context, s *database.MaintenanceState) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, s)
	}
	return ErrNotImplemented
}

func (m *MockMaintenanceStateRepo) IncrementTotal(ctx context.Context, ownerID uuid.UUID) (int, error) {
	if m.IncrementTotalFunc != nil {
		return m.IncrementTotalFunc(ctx, ownerID)
	}
	return 0, ErrNotImplemented
}

// MockLanguageModel is a function-field mock of ai.LanguageModel.
type MockLanguageModel struct {
	CompleteFunc          func(ctx context.Context, system, prompt string) (string, error)
	CompleteWithToolsFunc func(ctx context.Context, messages []ai.ChatMessage, tools []ai.ToolSpec) (*ai.ChatResult, error)
	EmbedFunc             func(ctx context.Context, text string) ([]float64, error)
	DescribeImageFunc     func(ctx context.Context, imageURL, prompt string) (string, error)
}

var _ ai.LanguageModel = (*MockLanguageModel)(nil)

func (m *MockLanguageModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, prompt)
	}
	return "", ErrNotImplemented
}

func (m *MockLanguageModel) CompleteWithTools(ctx context.Context, messages []ai.ChatMessage, tools []ai.ToolSpec) (*ai.ChatResult, error) {
	if m.CompleteWithToolsFunc != nil {
		return m.CompleteWithToolsFunc(ctx, messages, tools)
	}
	return nil, ErrNotImplemented
}

func (m *MockLanguageModel) Embed(ctx context.Context, text string) ([]float64, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return nil, ErrNotImplemented
}

func (m *MockLanguageModel) DescribeImage(ctx context.Context, imageURL, prompt string) (string, error) {
	if m.DescribeImageFunc != nil {
		return m.DescribeImageFunc(ctx, imageURL, prompt)
	}
	return "", ErrNotImplemented
}
