package models

import (
	"time"

	"github.com/google/uuid"
)

// ConversationRole is the author of a conversation entry.
type ConversationRole string

const (
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// ConversationEntry is one exchanged message. The in-memory window is
// authoritative for the process lifetime; persistence is best-effort.
type ConversationEntry struct {
	OwnerID   uuid.UUID        `json:"owner_id"`
	Role      ConversationRole `json:"role"`
	Content   string           `json:"content"`
	NoteIDs   []uuid.UUID      `json:"note_ids,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
