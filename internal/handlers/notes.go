package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/request"
	"github.com/stashd/stash/internal/services/extract"
	"github.com/stashd/stash/internal/taxonomy"
	"github.com/stashd/stash/internal/validation"
)

const (
	// MaxNoteContentLength is the maximum length for note content
	MaxNoteContentLength = 100000
	// DefaultInboxLimit is the default number of inbox notes returned
	DefaultInboxLimit = 20
	// FallbackNoteTitle is used when neither the caller nor extraction
	// produced a title.
	FallbackNoteTitle = "Untitled note"
)

// ContentExtractor pulls title and text from a captured URL.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (*extract.Result, error)
}

// EnrichmentEnqueuer schedules the background enrichment pipeline.
type EnrichmentEnqueuer interface {
	EnqueueNoteEnrichment(ctx context.Context, ownerID, noteID uuid.UUID) error
}

// NoteSavedHook runs after each persisted capture (maintenance trigger).
type NoteSavedHook func(ownerID uuid.UUID)

// NoteHandler handles note-related requests
type NoteHandler struct {
	notes     database.NoteRepositoryInterface
	taxonomy  *taxonomy.Cache
	extractor ContentExtractor
	enqueuer  EnrichmentEnqueuer
	onSaved   NoteSavedHook
	logger    *zap.Logger
}

// NewNoteHandler creates a new note handler
func NewNoteHandler(
	notes database.NoteRepositoryInterface,
	tax *taxonomy.Cache,
	extractor ContentExtractor,
	enqueuer EnrichmentEnqueuer,
	onSaved NoteSavedHook,
	logger *zap.Logger,
) *NoteHandler {
	return &NoteHandler{
		notes:     notes,
		taxonomy:  tax,
		extractor: extractor,
		enqueuer:  enqueuer,
		onSaved:   onSaved,
		logger:    logger,
	}
}

// RegisterRoutes registers note routes on the given router
// The router should already have the /notes prefix
func (h *NoteHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.CaptureNote).Methods("POST")
	r.HandleFunc("/inbox", h.ListInbox).Methods("GET")
	r.HandleFunc("/search", h.SearchNotes).Methods("GET")
	r.HandleFunc("/{id}", h.GetNote).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateNote).Methods("PATCH")
	r.HandleFunc("/{id}/confirm", h.ConfirmPlacement).Methods("POST")
}

// CaptureNoteRequest represents a note capture request
type CaptureNoteRequest struct {
	Content string                `json:"content"`
	Title   string                `json:"title,omitempty"`
	Source  string                `json:"source,omitempty"`
	URL     string                `json:"url,omitempty"`
	Payload *models.SourcePayload `json:"payload,omitempty"`
}

// CaptureNoteResponse carries the stored note plus a warning when
// extraction failed and fallback content was used.
type CaptureNoteResponse struct {
	Note    *models.Note `json:"note"`
	Warning string       `json:"warning,omitempty"`
}

// CaptureNote stores a new note in the inbox and queues enrichment.
// URL-only captures go through the extractor; when extraction fails
// the note is still saved with a fallback title and the response
// carries a warning.
func (h *NoteHandler) CaptureNote(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := request.OwnerFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Owner not found in context")
		return
	}

	var req CaptureNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}

	req.Content = validation.SanitizeText(req.Content)
	req.Title = validation.SanitizeText(req.Title)
	if req.Content == "" && req.URL == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "content or url is required")
		return
	}
	if len(req.Content) > MaxNoteContentLength {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "content exceeds maximum length")
		return
	}

	source := models.NoteSourceText
	if req.Source != "" {
		if err := validation.ValidateNoteSource(req.Source); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		source = models.NoteSource(req.Source)
	} else if req.URL != "" {
		source = models.NoteSourceArticle
	}

	note := &models.Note{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Title:   req.Title,
		Content: req.Content,
		Source:  source,
	}
	if req.Payload != nil {
		note.Payload = *req.Payload
	}
	if req.URL != "" {
		note.Payload.URL = req.URL
	}

	warning := ""
	if req.URL != "" && req.Content == "" && h.extractor != nil {
		result, err := h.extractor.Extract(r.Context(), req.URL)
		if err != nil {
			h.logger.Warn("content_extraction_failed",
				zap.String("owner_id", ownerID.String()),
				zap.Error(err),
			)
			warning = "Couldn't read the page behind that link; saved the bare URL instead."
		} else {
			if note.Title == "" {
				note.Title = result.Title
			}
			note.Content = result.Content
			if note.Payload.SiteName == "" {
				note.Payload.SiteName = result.SiteName
			}
		}
	}

	if note.Title == "" {
		note.Title = deriveCaptureTitle(note.Content)
	}

	if err := h.notes.Create(r.Context(), note); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save note")
		return
	}

	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueNoteEnrichment(r.Context(), ownerID, note.ID); err != nil {
			h.logger.Warn("enrichment_enqueue_failed",
				zap.String("note_id", note.ID.String()),
				zap.Error(err),
			)
		}
	}
	if h.onSaved != nil {
		h.onSaved(ownerID)
	}

	respondJSON(w, http.StatusCreated, CaptureNoteResponse{Note: note, Warning: warning})
}

// ListInbox lists unfiled notes, newest first.
func (h *NoteHandler) ListInbox(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := request.OwnerFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Owner not found in context")
		return
	}

	notes, err := h.notes.ListInbox(r.Context(), ownerID, DefaultInboxLimit)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list inbox")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

// SearchNotes performs a lexical search over the owner's notes.
func (h *NoteHandler) SearchNotes(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := request.OwnerFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Owner not found in context")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "q parameter is required")
		return
	}

	notes, _, err := h.notes.SearchLexical(r.Context(), ownerID, query, DefaultInboxLimit)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Search failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

// GetNote retrieves a single note.
func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	_, note, ok := h.ownedNote(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, note)
}

// UpdateNoteRequest represents a note update request
type UpdateNoteRequest struct {
	Title   *string   `json:"title,omitempty"`
	Content *string   `json:"content,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
}

// UpdateNote edits note text fields. Placement changes go through
// ConfirmPlacement or the agent's move_note.
func (h *NoteHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	_, note, ok := h.ownedNote(w, r)
	if !ok {
		return
	}

	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}

	if req.Title != nil {
		title := validation.SanitizeText(*req.Title)
		if title == "" {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "title cannot be empty")
			return
		}
		note.Title = title
	}
	if req.Content != nil {
		content := validation.SanitizeText(*req.Content)
		if len(content) > MaxNoteContentLength {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "content exceeds maximum length")
			return
		}
		note.Content = content
	}
	if req.Tags != nil {
		note.Tags = *req.Tags
	}

	if err := h.notes.Update(r.Context(), note); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update note")
		return
	}

	respondJSON(w, http.StatusOK, note)
}

// ConfirmPlacementRequest names the bucket the user filed the note into.
// An empty bucket id confirms the AI-suggested bucket.
type ConfirmPlacementRequest struct {
	BucketID *uuid.UUID `json:"bucket_id,omitempty"`
}

// ConfirmPlacement is the user-confirmation path: the single HTTP
// operation that sets is_classified.
func (h *NoteHandler) ConfirmPlacement(w http.ResponseWriter, r *http.Request) {
	ownerID, note, ok := h.ownedNote(w, r)
	if !ok {
		return
	}

	var req ConfirmPlacementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}

	target := req.BucketID
	if target == nil {
		target = note.AISuggestedBucket
	}
	if target == nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "No bucket to confirm: provide bucket_id or wait for a suggestion")
		return
	}

	snap, err := h.taxonomy.GetTree(r.Context(), ownerID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load buckets")
		return
	}
	if _, exists := snap.ByID[*target]; !exists {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Bucket not found")
		return
	}

	note.BucketID = target
	note.IsClassified = true
	if err := h.notes.Update(r.Context(), note); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update note")
		return
	}
	h.taxonomy.Invalidate(ownerID)

	respondJSON(w, http.StatusOK, note)
}

// ownedNote loads the path note and enforces ownership. On failure it
// writes the error response and returns ok=false.
func (h *NoteHandler) ownedNote(w http.ResponseWriter, r *http.Request) (uuid.UUID, *models.Note, bool) {
	ownerID, ok := request.OwnerFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Owner not found in context")
		return uuid.Nil, nil, false
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid note ID")
		return uuid.Nil, nil, false
	}

	note, err := h.notes.GetByID(r.Context(), id)
	if err != nil || note.OwnerID != ownerID {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Note not found")
		return uuid.Nil, nil, false
	}

	return ownerID, note, true
}

func deriveCaptureTitle(content string) string {
	if line := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0]); line != "" {
		if len([]rune(line)) > 80 {
			return string([]rune(line)[:80]) + "…"
		}
		return line
	}
	return FallbackNoteTitle
}
