package ai

import "fmt"

// Role values follow the chat completion wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of chat context sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BackendError reports a failed AI backend call.
type BackendError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("ai %s failed (status %d): %v", e.Operation, e.StatusCode, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
