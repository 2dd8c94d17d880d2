package conversation

import (
	"errors"
	"strings"
	"time"

	"prism/internal/api"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// RenderState tracks the typewriter lifecycle of a message.
type RenderState string

const (
	RenderStatic   RenderState = "static"
	RenderTyping   RenderState = "typing"
	RenderComplete RenderState = "complete"
)

// Outcome is the tri-state success flag of an assistant message.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// Placeholder is the content of an assistant message awaiting its answer.
const Placeholder = "Thinking..."

// Apology replaces a placeholder when the backend could not be reached
// or sent something unreadable.
const Apology = "Sorry, there was an error processing your question. Please check if the backend is running and try again."

// FailureText is what a failed answer shows. A backend that answered
// with success false explains itself; anything else gets the apology.
func FailureText(err error) string {
	var appErr *api.AppError
	if errors.As(err, &appErr) && strings.TrimSpace(appErr.Message) != "" {
		return appErr.Message
	}
	return Apology
}

// Message is one entry in the transcript.
type Message struct {
	ID             string
	Role           Role
	Content        string
	Sources        []api.Source
	Timestamp      time.Time
	RenderState    RenderState
	Outcome        Outcome
	ContextUsed    bool
	ProcessingTime time.Duration
	Fallback       bool
}
