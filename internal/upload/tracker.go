package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"prism/internal/api"
	"prism/internal/poller"
)

// Tracker holds the live state of every upload task. Upload goroutines and
// poll chains write to it concurrently; observers receive copies.
type Tracker struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	order     []string
	byToken   map[string]string
	observers []func(Task)
}

func NewTracker() *Tracker {
	return &Tracker{
		tasks:   make(map[string]*Task),
		byToken: make(map[string]string),
	}
}

// Observe registers fn to be called after every task change.
func (t *Tracker) Observe(fn func(Task)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// Add registers a queued task and returns its id.
func (t *Tracker) Add(task Task) string {
	t.mu.Lock()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = StatusQueued
	}
	task.UpdatedAt = time.Now()
	cp := task
	t.tasks[task.ID] = &cp
	t.order = append(t.order, task.ID)
	observers := t.observers
	t.mu.Unlock()

	notify(observers, cp)
	return task.ID
}

// Update applies fn to the task with id and returns the new state.
func (t *Tracker) Update(id string, fn func(*Task)) (Task, bool) {
	t.mu.Lock()
	task, ok := t.tasks[id]
	if !ok {
		t.mu.Unlock()
		return Task{}, false
	}
	fn(task)
	task.UpdatedAt = time.Now()
	if task.ProgressID != "" {
		t.byToken[task.ProgressID] = id
	}
	cp := *task
	observers := t.observers
	t.mu.Unlock()

	notify(observers, cp)
	return cp, true
}

// Apply implements poller.Sink, routing an update to the task that owns
// the progress token.
func (t *Tracker) Apply(u poller.Update) {
	t.mu.Lock()
	id, ok := t.byToken[u.Token]
	t.mu.Unlock()
	if !ok {
		return
	}
	t.Update(id, func(task *Task) {
		task.Status = Status(api.CanonicalStatus(u.Status))
		task.Percentage = u.Percentage
		task.Message = u.Message
		if u.FileID != "" {
			task.ServerFileID = u.FileID
		}
	})
}

// Get returns a copy of one task.
func (t *Tracker) Get(id string) (Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// ByToken returns the task registered for a progress token.
func (t *Tracker) ByToken(token string) (Task, bool) {
	t.mu.Lock()
	id, ok := t.byToken[token]
	t.mu.Unlock()
	if !ok {
		return Task{}, false
	}
	return t.Get(id)
}

// Snapshot returns every task in insertion order.
func (t *Tracker) Snapshot() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Task, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.tasks[id])
	}
	return out
}

// Pending counts tasks that have not reached a terminal status.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, task := range t.tasks {
		if !task.Status.Terminal() {
			n++
		}
	}
	return n
}

func notify(observers []func(Task), task Task) {
	for _, fn := range observers {
		fn(task)
	}
}
