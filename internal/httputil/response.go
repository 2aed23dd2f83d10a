package httputil

import (
	"encoding/json"
	"net/http"
)

// FailureResponse is the error body shared by every endpoint:
// {"success": false, "error": "Human readable message"}
type FailureResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	NeedsRetry *bool  `json:"needsRetry,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		// headers are already sent, nothing left to report to the client
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a failure body with an optional machine-readable code.
func WriteError(w http.ResponseWriter, status int, code string, message string) {
	WriteJSON(w, status, FailureResponse{Success: false, Error: message, Code: code})
}

// WriteBadRequest writes a 400 Bad Request error
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "", message)
}

// WriteBadRequestWithCode writes a 400 Bad Request error with a custom code
func WriteBadRequestWithCode(w http.ResponseWriter, code string, message string) {
	WriteError(w, http.StatusBadRequest, code, message)
}

// WriteUnauthorized writes a 401 Unauthorized error
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "", message)
}

// WriteForbidden writes a 403 Forbidden error
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "", message)
}

// WriteNotFound writes a 404 Not Found error
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "", message)
}

// WriteTooManyRequests writes a 429 error
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "", message)
}

// WriteInternalError writes a 500 Internal Server Error
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "", message)
}

// WriteRetryableError writes a 500 body carrying the needsRetry hint.
func WriteRetryableError(w http.ResponseWriter, message string, needsRetry bool) {
	WriteJSON(w, http.StatusInternalServerError, FailureResponse{
		Success:    false,
		Error:      message,
		NeedsRetry: &needsRetry,
	})
}
