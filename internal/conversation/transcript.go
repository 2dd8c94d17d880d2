package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transcript is the ordered message list of one conversation. At most one
// message is in RenderTyping at a time.
type Transcript struct {
	mu        sync.Mutex
	messages  []Message
	lastCount int
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// Messages returns a copy of the transcript.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.messages...)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Append adds a message, assigning ID and Timestamp when missing.
func (t *Transcript) Append(m Message) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendLocked(m)
}

func (t *Transcript) appendLocked(m Message) string {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	if m.RenderState == "" {
		m.RenderState = RenderStatic
	}
	t.messages = append(t.messages, m)
	return m.ID
}

// AppendUserAndPlaceholder adds the question and the "Thinking..."
// assistant placeholder in one update. Any message still typing is
// settled first so only the new placeholder can be typing.
func (t *Transcript) AppendUserAndPlaceholder(question string) (userID, placeholderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if t.messages[i].RenderState == RenderTyping {
			t.messages[i].RenderState = RenderComplete
		}
	}
	userID = t.appendLocked(Message{Role: RoleUser, Content: question})
	placeholderID = t.appendLocked(Message{
		Role:        RoleAssistant,
		Content:     Placeholder,
		RenderState: RenderTyping,
		Outcome:     OutcomePending,
	})
	return userID, placeholderID
}

// Update applies fn to the message with id. It returns false when the
// message no longer exists (e.g. the transcript was cleared).
func (t *Transcript) Update(id string, fn func(*Message)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if t.messages[i].ID == id {
			fn(&t.messages[i])
			return true
		}
	}
	return false
}

// SetContent replaces a message's content, as each reveal tick does.
func (t *Transcript) SetContent(id, content string) bool {
	return t.Update(id, func(m *Message) { m.Content = content })
}

// Complete attaches the answer metadata in one final update.
func (t *Transcript) Complete(id string, ans *Answer) bool {
	return t.Update(id, func(m *Message) {
		m.Content = ans.Text
		m.Sources = ans.Sources
		m.ContextUsed = ans.ContextUsed
		m.ProcessingTime = ans.ProcessingTime
		m.Fallback = ans.Fallback
		m.RenderState = RenderComplete
		m.Outcome = OutcomeSuccess
	})
}

// Fail handles a failed answer request. If the last message is the still
// typing placeholder it becomes FailureText(err) at once; otherwise a new
// assistant error message is appended. It returns the affected id.
func (t *Transcript) Fail(err error) string {
	text := FailureText(err)
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.messages); n > 0 {
		last := &t.messages[n-1]
		if last.Role == RoleAssistant && last.RenderState == RenderTyping {
			last.Content = text
			last.RenderState = RenderComplete
			last.Outcome = OutcomeFailure
			last.Sources = nil
			return last.ID
		}
	}
	return t.appendLocked(Message{
		Role:        RoleAssistant,
		Content:     text,
		RenderState: RenderComplete,
		Outcome:     OutcomeFailure,
	})
}

// Typing returns the id of the message being revealed, if any.
func (t *Transcript) Typing() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.messages {
		if m.RenderState == RenderTyping {
			return m.ID, true
		}
	}
	return "", false
}

// ShouldScroll reports whether the message count grew since the last call.
// Content updates during a reveal never trigger a scroll.
func (t *Transcript) ShouldScroll() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	grew := len(t.messages) > t.lastCount
	t.lastCount = len(t.messages)
	return grew
}

// Clear removes every message.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = nil
	t.lastCount = 0
}
