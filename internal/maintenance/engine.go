// Package maintenance runs the background routines that keep a
// taxonomy healthy: bloat detection, staleness detection, and periodic
// reorganization. Every routine emits reviewable Suggestions; nothing
// here mutates the taxonomy without explicit user acceptance.
package maintenance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/services/ai"
	"github.com/stashd/stash/internal/taxonomy"
	"github.com/stashd/stash/internal/validation"
)

// Engine hosts the three maintenance routines and their shared
// suggestion emission path.
type Engine struct {
	buckets     database.BucketRepositoryInterface
	notes       database.NoteRepositoryInterface
	suggestions database.SuggestionRepositoryInterface
	taxonomy    *taxonomy.Cache
	model       ai.LanguageModel
	logger      *zap.Logger
}

// NewEngine creates a maintenance engine.
func NewEngine(
	buckets database.BucketRepositoryInterface,
	notes database.NoteRepositoryInterface,
	suggestions database.SuggestionRepositoryInterface,
	tax *taxonomy.Cache,
	model ai.LanguageModel,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		buckets:     buckets,
		notes:       notes,
		suggestions: suggestions,
		taxonomy:    tax,
		model:       model,
		logger:      logger,
	}
}

// RunAll executes every routine for the owner. Individual routine
// failures are logged and do not stop the others.
func (e *Engine) RunAll(ctx context.Context, ownerID uuid.UUID) {
	if _, err := e.CheckBloat(ctx, ownerID); err != nil {
		e.logger.Warn("bloat check failed", zap.String("owner_id", ownerID.String()), zap.Error(err))
	}
	if _, err := e.CheckStaleness(ctx, ownerID); err != nil {
		e.logger.Warn("staleness check failed", zap.String("owner_id", ownerID.String()), zap.Error(err))
	}
	if _, err := e.Reorganize(ctx, ownerID); err != nil {
		e.logger.Warn("reorganization failed", zap.String("owner_id", ownerID.String()), zap.Error(err))
	}
}

// emit validates and persists a suggestion unless an equivalent one is
// already pending. Returns whether the suggestion was created.
func (e *Engine) emit(ctx context.Context, s *models.Suggestion) (bool, error) {
	if err := validation.ValidateSuggestionPayload(s.Kind, &s.Payload); err != nil {
		return false, fmt.Errorf("invalid %s suggestion: %w", s.Kind, err)
	}

	exists, err := e.suggestions.PendingExists(ctx, s.OwnerID, s.Kind, s.DedupKey())
	if err != nil {
		return false, fmt.Errorf("failed to check pending suggestions: %w", err)
	}
	if exists {
		return false, nil
	}

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Status = models.SuggestionPending
	if err := e.suggestions.Create(ctx, s); err != nil {
		return false, fmt.Errorf("failed to create suggestion: %w", err)
	}
	return true, nil
}
