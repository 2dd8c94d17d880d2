// Package typewriter reveals a finished answer one character at a time.
//
// The reveal state is a pure function of (final text, counter). A
// Controller holds at most one active reveal, identified by a generation
// number; starting a new reveal supersedes the old one and any tick that
// still carries the old generation is ignored. The TUI drives a Controller
// with tea.Tick messages, the CLI with a Player.
package typewriter

import (
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultInterval is the delay between revealed characters.
const DefaultInterval = 35 * time.Millisecond

// Prefix returns the first i characters (runes) of final. i is clamped to
// [0, len(final)].
func Prefix(final string, i int) string {
	if i <= 0 {
		return ""
	}
	n := 0
	for pos := range final {
		if n == i {
			return final[:pos]
		}
		n++
	}
	return final
}

// Len returns the number of ticks a full reveal of final takes.
func Len(final string) int {
	return utf8.RuneCountInString(final)
}

// Frame is the observable state after one tick.
type Frame struct {
	Gen       uint64
	MessageID string
	Content   string
	Counter   int
	Done      bool
}

type reveal struct {
	gen       uint64
	messageID string
	final     string
	total     int
	counter   int
}

// Controller serializes reveals. It is safe for concurrent use.
type Controller struct {
	mu     sync.Mutex
	gen    uint64
	active *reveal
}

// Start begins revealing final into messageID and returns the generation
// that ticks for this reveal must carry. Any running reveal is dropped.
func (c *Controller) Start(messageID, final string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.active = &reveal{
		gen:       c.gen,
		messageID: messageID,
		final:     final,
		total:     Len(final),
	}
	return c.gen
}

// Tick advances the reveal for gen by one character. It returns false when
// gen is not the active reveal (superseded, cancelled, or finished). The
// frame with Done set is returned exactly once, after which the reveal is
// no longer active.
func (c *Controller) Tick(gen uint64) (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.active
	if r == nil || r.gen != gen {
		return Frame{}, false
	}
	if r.counter < r.total {
		r.counter++
	}
	f := Frame{
		Gen:       r.gen,
		MessageID: r.messageID,
		Content:   Prefix(r.final, r.counter),
		Counter:   r.counter,
		Done:      r.counter >= r.total,
	}
	if f.Done {
		c.active = nil
	}
	return f, true
}

// Complete jumps the reveal for gen straight to its final frame.
func (c *Controller) Complete(gen uint64) (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.active
	if r == nil || r.gen != gen {
		return Frame{}, false
	}
	c.active = nil
	return Frame{Gen: r.gen, MessageID: r.messageID, Content: r.final, Counter: r.total, Done: true}, true
}

// Cancel drops the active reveal, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = nil
}

// CancelGen drops the active reveal only if it is still gen.
func (c *Controller) CancelGen(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.gen == gen {
		c.active = nil
	}
}

// Active reports the message currently being revealed.
func (c *Controller) Active() (messageID string, gen uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", 0, false
	}
	return c.active.messageID, c.active.gen, true
}
