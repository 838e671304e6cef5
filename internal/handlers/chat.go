package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/agent"
	"github.com/stashd/stash/internal/conversation"
	"github.com/stashd/stash/internal/locks"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/request"
	"github.com/stashd/stash/internal/services/ai"
	"github.com/stashd/stash/internal/validation"
)

const chatSystemPrompt = `You are a filing assistant for a personal knowledge base. The user captures notes, links, and ideas; you save them, organize them into buckets (projects, areas, resources, archives), and answer questions about what has been saved. Use the available tools for every side effect. Be concise; this is a chat interface.`

const onboardingNudge = `The user is new and has no buckets yet. Ask about their projects and interests, then call finalize_onboarding with a starter set of buckets.`

// genericFailureText is returned when the agent loop fails for any
// reason; internals are never surfaced to the chat client.
const genericFailureText = "Something went wrong on my end. Please try again."

// ChatHandler handles agent chat requests
type ChatHandler struct {
	loop          *agent.Loop
	dispatcher    *agent.Dispatcher
	conversations *conversation.Store
	locks         *locks.OwnerLocks
	logger        *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(loop *agent.Loop, dispatcher *agent.Dispatcher, conversations *conversation.Store, ownerLocks *locks.OwnerLocks, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		loop:          loop,
		dispatcher:    dispatcher,
		conversations: conversations,
		locks:         ownerLocks,
		logger:        logger,
	}
}

// RegisterRoutes registers chat routes
func (h *ChatHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/chat", h.SendMessage).Methods("POST")
	r.HandleFunc("/chat/history", h.ClearHistory).Methods("DELETE")
}

// ChatRequest represents a chat message request
type ChatRequest struct {
	Message               string `json:"message" validate:"required"`
	PreExtractedContent   string `json:"pre_extracted_content,omitempty"`
	NoteContext           string `json:"note_context,omitempty"`
	AttachmentDescription string `json:"attachment_description,omitempty"`
	StartOnboarding       bool   `json:"start_onboarding,omitempty"`
	Platform              string `json:"platform,omitempty"`
}

// ChatResponse represents the agent's reply
type ChatResponse struct {
	Text         string      `json:"text"`
	NoteIDs      []uuid.UUID `json:"noteIds"`
	Deduplicated bool        `json:"deduplicated,omitempty"`
}

// SendMessage runs one agent exchange. Requests for the same owner are
// serialized by the advisory lock; a duplicate delivery of the previous
// message (platform webhook retry) is answered from history without
// re-running the agent.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := request.OwnerFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Owner not found in context")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}
	req.Message = validation.SanitizeText(req.Message)
	if strings.TrimSpace(req.Message) == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "message is required")
		return
	}

	ctx := r.Context()
	release := h.locks.Acquire(ctx, ownerID)
	defer release()

	history, err := h.conversations.Recent(ctx, ownerID)
	if err != nil {
		h.logger.Warn("conversation_history_unavailable",
			zap.String("owner_id", ownerID.String()),
			zap.Error(err),
		)
		history = nil
	}

	if text, dup := duplicateDelivery(history, req.Message); dup {
		respondJSON(w, http.StatusOK, ChatResponse{Text: text, NoteIDs: []uuid.UUID{}, Deduplicated: true})
		return
	}

	messages := h.assembleMessages(history, req)

	result, err := h.loop.Run(ctx, ownerID, messages)
	text := genericFailureText
	var noteIDs []uuid.UUID
	if err != nil {
		h.logger.Error("agent_loop_failed",
			zap.String("owner_id", ownerID.String()),
			zap.Error(err),
		)
	} else {
		text = result.Text
		noteIDs = h.dispatcher.TakeSavedNoteIDs()
	}
	if noteIDs == nil {
		noteIDs = []uuid.UUID{}
	}

	h.conversations.Append(ownerID, models.RoleUser, req.Message, nil)
	h.conversations.Append(ownerID, models.RoleAssistant, text, noteIDs)

	respondJSON(w, http.StatusOK, ChatResponse{Text: text, NoteIDs: noteIDs})
}

// ClearHistory drops the owner's conversation window.
func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := request.OwnerFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Owner not found in context")
		return
	}

	h.conversations.Clear(ownerID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// duplicateDelivery reports whether message is a re-delivery of the
// last user entry, and returns the assistant reply that followed it.
func duplicateDelivery(history []*models.ConversationEntry, message string) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != models.RoleUser {
			continue
		}
		if history[i].Content != message {
			return "", false
		}
		if i+1 < len(history) && history[i+1].Role == models.RoleAssistant {
			return history[i+1].Content, true
		}
		return "", false
	}
	return "", false
}

func (h *ChatHandler) assembleMessages(history []*models.ConversationEntry, req ChatRequest) []ai.ChatMessage {
	system := chatSystemPrompt
	if req.StartOnboarding {
		system += "\n\n" + onboardingNudge
	}

	messages := []ai.ChatMessage{{Role: ai.RoleSystem, Content: system}}
	for _, e := range history {
		role := ai.RoleUser
		if e.Role == models.RoleAssistant {
			role = ai.RoleAssistant
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: e.Content})
	}

	content := req.Message
	if req.NoteContext != "" {
		content = "Context note:\n" + req.NoteContext + "\n\n" + content
	}
	// A client that already fetched the page passes the body along so
	// save_note stores the article text rather than the bare URL.
	if req.PreExtractedContent != "" {
		content += "\n\nExtracted page content (use this as the note content when saving):\n" + req.PreExtractedContent
	}
	if req.AttachmentDescription != "" {
		content += "\n\n[Attachment: " + req.AttachmentDescription + "]"
	}
	messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: content})
	return messages
}
