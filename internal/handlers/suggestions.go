package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/maintenance"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/request"
)

// SuggestionHandler handles maintenance suggestion review requests
type SuggestionHandler struct {
	suggestions database.SuggestionRepositoryInterface
	executor    *maintenance.Executor
	logger      *zap.Logger
}

// NewSuggestionHandler creates a new suggestion handler
func NewSuggestionHandler(suggestions database.SuggestionRepositoryInterface, executor *maintenance.Executor, logger *zap.Logger) *SuggestionHandler {
	return &SuggestionHandler{suggestions: suggestions, executor: executor, logger: logger}
}

// RegisterRoutes registers suggestion routes on the given router
// The router should already have the /suggestions prefix
func (h *SuggestionHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListPending).Methods("GET")
	r.HandleFunc("/{id}/accept", h.Accept).Methods("POST")
	r.HandleFunc("/{id}/dismiss", h.Dismiss).Methods("POST")
}

// ListPending lists suggestions awaiting review.
func (h *SuggestionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := request.OwnerFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Owner not found in context")
		return
	}

	pending, err := h.suggestions.ListPending(r.Context(), ownerID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list suggestions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"suggestions": pending})
}

// Accept applies the suggestion and marks it accepted. Application is
// not transactional: a partial failure reports the error and leaves the
// suggestion pending for retry.
func (h *SuggestionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ownerID, suggestion, ok := h.ownedPending(w, r)
	if !ok {
		return
	}

	if err := h.executor.Execute(r.Context(), suggestion); err != nil {
		h.logger.Warn("suggestion_execution_failed",
			zap.String("suggestion_id", suggestion.ID.String()),
			zap.String("kind", string(suggestion.Kind)),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusConflict, "Conflict", err.Error())
		return
	}

	if err := h.suggestions.UpdateStatus(r.Context(), ownerID, suggestion.ID, models.SuggestionAccepted); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Applied but failed to record acceptance")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"status": models.SuggestionAccepted})
}

// Dismiss marks the suggestion dismissed without applying it.
func (h *SuggestionHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	ownerID, suggestion, ok := h.ownedPending(w, r)
	if !ok {
		return
	}

	if err := h.suggestions.UpdateStatus(r.Context(), ownerID, suggestion.ID, models.SuggestionDismissed); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to dismiss suggestion")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"status": models.SuggestionDismissed})
}

// ownedPending loads the path suggestion and checks ownership and
// pending status.
func (h *SuggestionHandler) ownedPending(w http.ResponseWriter, r *http.Request) (uuid.UUID, *models.Suggestion, bool) {
	ownerID, ok := request.OwnerFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Owner not found in context")
		return uuid.Nil, nil, false
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid suggestion ID")
		return uuid.Nil, nil, false
	}

	suggestion, err := h.suggestions.GetByID(r.Context(), id)
	if err != nil || suggestion.OwnerID != ownerID {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Suggestion not found")
		return uuid.Nil, nil, false
	}
	if suggestion.Status != models.SuggestionPending {
		respondJSONError(w, http.StatusConflict, "Conflict", "Suggestion is no longer pending")
		return uuid.Nil, nil, false
	}

	return ownerID, suggestion, true
}
