package ai

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Context key types for logging (to avoid collisions with string keys)
type contextKey string

const (
	ownerIDContextKey   contextKey = "owner_id"
	noteIDContextKey    contextKey = "note_id"
	requestIDContextKey contextKey = "request_id"
)

// OwnerIDContextKey returns the context key for owner ID
func OwnerIDContextKey() contextKey {
	return ownerIDContextKey
}

// NoteIDContextKey returns the context key for note ID
func NoteIDContextKey() contextKey {
	return noteIDContextKey
}

// RequestIDContextKey returns the context key for request ID
func RequestIDContextKey() contextKey {
	return requestIDContextKey
}

const (
	// MaxPreviewLength is the maximum length for preview strings in logs
	MaxPreviewLength = 200
	// MaxDebugContentLength is the maximum length for full debug content
	MaxDebugContentLength = 10000
	// RedactedValue is the value used to replace sensitive data
	RedactedValue = "[REDACTED]"
)

// SanitizeAPIKey sanitizes an API key for logging
func SanitizeAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return RedactedValue
	}
	return apiKey[:4] + RedactedValue + apiKey[len(apiKey)-4:]
}

// SanitizePrompt creates a safe preview of a prompt for logging.
// Even in fullLog mode content is sanitized to prevent log injection.
func SanitizePrompt(prompt string, fullLog bool) string {
	maxLen := MaxPreviewLength
	if fullLog {
		maxLen = MaxDebugContentLength
	}
	return sanitizeForLogging(prompt, maxLen)
}

// SanitizeResponse creates a safe preview of a response for logging.
func SanitizeResponse(response string, fullLog bool) string {
	maxLen := MaxPreviewLength
	if fullLog {
		maxLen = MaxDebugContentLength
	}
	return sanitizeForLogging(response, maxLen)
}

func sanitizeForLogging(s string, maxLen int) string {
	if s == "" {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' || r == '\n' {
			builder.WriteRune(r)
		}
	}
	s = builder.String()
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
