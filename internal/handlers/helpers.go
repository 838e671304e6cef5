package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// maxErrorMessageLength caps error text returned to clients.
const maxErrorMessageLength = 200

// envelope is the uniform response shape for all API endpoints.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// respondJSON sends a success envelope.
func respondJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, envelope{
		Success: true,
		Data:    data,
	})
}

// respondJSONError sends an error envelope. The message is truncated so
// repository and model errors cannot leak internals at length.
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	writeEnvelope(w, status, envelope{
		Success: false,
		Error:   errorType,
		Message: sanitizeErrorMessage(message),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, e envelope) {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func sanitizeErrorMessage(message string) string {
	if len(message) > maxErrorMessageLength {
		return message[:maxErrorMessageLength] + "..."
	}
	return message
}
