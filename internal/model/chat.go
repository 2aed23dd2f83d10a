package model

import (
	"errors"
	"fmt"
)

// User-facing chat messages
const (
	MsgQuestionRequired   = "Question is required"
	MsgServiceUnavailable = "Service temporarily unavailable. Please try again later."
	MsgUpstreamTimeout    = "Request took too long. Please try again."
	MsgUpstreamWarmingUp  = "Service is getting ready to help. Please try again in a few minutes."
)

// Chat errors
var (
	// ErrChatNotConfigured is returned when credentials or the system prompt are missing.
	ErrChatNotConfigured = errors.New("chat gateway not configured")
	ErrQuestionRequired  = errors.New("question is required")
)

// ChatTurn is one prior question/response exchange.
type ChatTurn struct {
	Question string `json:"question"`
	Response string `json:"response"`
}

// ChatAttachment references an uploaded image. GCSURL holds the remote object reference
// (gs://bucket/path) when the upload reached object storage.
type ChatAttachment struct {
	GCSURL   string `json:"gcsUrl,omitempty"`
	Type     string `json:"type,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// ChatRequest is the body of POST /api/sri-chatbot.
type ChatRequest struct {
	Question    string           `json:"question"`
	ChatHistory []ChatTurn       `json:"chatHistory"`
	Attachments []ChatAttachment `json:"attachments"`
}

// ChatResponse is returned for both success and failure.
type ChatResponse struct {
	Success    bool   `json:"success"`
	Response   string `json:"response,omitempty"`
	Question   string `json:"question,omitempty"`
	Error      string `json:"error,omitempty"`
	NeedsRetry *bool  `json:"needsRetry,omitempty"`
}

// UpstreamFailure classifies why the generative endpoint could not answer.
type UpstreamFailure int

const (
	UpstreamUnavailable UpstreamFailure = iota
	UpstreamTimeout
	UpstreamProvisioning
)

func (f UpstreamFailure) String() string {
	switch f {
	case UpstreamTimeout:
		return "timeout"
	case UpstreamProvisioning:
		return "provisioning"
	default:
		return "unavailable"
	}
}

// UpstreamError is a terminal chat gateway failure.
type UpstreamError struct {
	Kind     UpstreamFailure
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Message returns the client-facing text for this failure.
func (e *UpstreamError) Message() string {
	switch e.Kind {
	case UpstreamTimeout:
		return MsgUpstreamTimeout
	case UpstreamProvisioning:
		return MsgUpstreamWarmingUp
	default:
		return MsgServiceUnavailable
	}
}

// NeedsRetry reports whether the client should retry later on its own.
func (e *UpstreamError) NeedsRetry() bool {
	return e.Kind == UpstreamProvisioning
}
