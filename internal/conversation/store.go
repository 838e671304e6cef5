// Package conversation keeps a bounded per-owner message window in
// memory, with best-effort persistence through the outbox.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stashd/stash/internal/cache"
	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/outbox"
)

const (
	// WindowSize is how many recent entries each owner keeps in memory
	// and how many the agent loop sees as history.
	WindowSize = 20

	maxTrackedOwners = 1000
	windowTTL        = 24 * time.Hour
)

// Store holds conversation windows. The in-memory window is
// authoritative for the process lifetime; the repository is an
// eventually-consistent backup written through the outbox.
type Store struct {
	mu      sync.Mutex
	windows *cache.BoundedMap[uuid.UUID, []*models.ConversationEntry]
	repo    database.ConversationRepositoryInterface
	outbox  *outbox.Outbox
}

// NewStore creates a conversation store.
func NewStore(repo database.ConversationRepositoryInterface, ob *outbox.Outbox) *Store {
	return &Store{
		windows: cache.NewBoundedMap[uuid.UUID, []*models.ConversationEntry](maxTrackedOwners, windowTTL),
		repo:    repo,
		outbox:  ob,
	}
}

// Append records an entry in the owner's window, trimming to the
// window size, and queues the persistence write.
func (s *Store) Append(ownerID uuid.UUID, role models.ConversationRole, content string, noteIDs []uuid.UUID) {
	entry := &models.ConversationEntry{
		OwnerID:   ownerID,
		Role:      role,
		Content:   content,
		NoteIDs:   noteIDs,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	window, _ := s.windows.Get(ownerID)
	window = append(window, entry)
	if len(window) > WindowSize {
		window = window[len(window)-WindowSize:]
	}
	s.windows.Set(ownerID, window)
	s.mu.Unlock()

	s.outbox.Submit("conversation_append", func(ctx context.Context) error {
		return s.repo.Append(ctx, entry)
	})
}

// Recent returns the owner's window, oldest first. A cold window (new
// process, evicted owner) is rehydrated from the repository once.
func (s *Store) Recent(ctx context.Context, ownerID uuid.UUID) ([]*models.ConversationEntry, error) {
	s.mu.Lock()
	window, ok := s.windows.Get(ownerID)
	s.mu.Unlock()
	if ok {
		return window, nil
	}

	entries, err := s.repo.Recent(ctx, ownerID, WindowSize)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// Another request may have raced the rehydrate; keep whichever
	// window landed first.
	if cur, ok := s.windows.Get(ownerID); ok {
		s.mu.Unlock()
		return cur, nil
	}
	s.windows.Set(ownerID, entries)
	s.mu.Unlock()
	return entries, nil
}

// Clear drops the owner's in-memory window.
func (s *Store) Clear(ownerID uuid.UUID) {
	s.mu.Lock()
	s.windows.Delete(ownerID)
	s.mu.Unlock()
}
