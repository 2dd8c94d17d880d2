// Package task provides cancellable handles for in-flight background work
// (poll chains, answer reveals, watchers) and groups that release every
// handle they own on Close.
package task

import (
	"context"
	"sync"
)

// Handle controls one running background operation.
type Handle interface {
	// Cancel requests the operation to stop. Safe to call repeatedly.
	Cancel()
	// Done is closed once the operation has returned.
	Done() <-chan struct{}
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *handle) Cancel()               { h.cancel() }
func (h *handle) Done() <-chan struct{} { return h.done }

// Group owns a set of keyed handles. Close cancels all of them and waits
// for them to return; after Close, Start refuses new work.
type Group struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	handles map[string]Handle
	closed  bool
	wg      sync.WaitGroup
}

// NewGroup creates a group whose handles derive from parent.
func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{
		ctx:     ctx,
		cancel:  cancel,
		handles: make(map[string]Handle),
	}
}

// Start runs fn under key. If a handle with the same key is still running,
// that handle is returned and fn is not started. The second return value
// reports whether fn was started.
func (g *Group) Start(key string, fn func(ctx context.Context)) (Handle, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return closedHandle{}, false
	}
	if h, ok := g.handles[key]; ok {
		select {
		case <-h.Done():
		default:
			return h, false
		}
	}

	ctx, cancel := context.WithCancel(g.ctx)
	h := &handle{cancel: cancel, done: make(chan struct{})}
	g.handles[key] = h
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer close(h.done)
		defer cancel()
		defer g.remove(key, h)
		fn(ctx)
	}()
	return h, true
}

// Replace cancels any handle running under key, then starts fn. When
// several callers replace the same key at once, each fn still runs; the
// last one started is the one left running.
func (g *Group) Replace(key string, fn func(ctx context.Context)) Handle {
	for {
		g.mu.Lock()
		prev, ok := g.handles[key]
		g.mu.Unlock()
		if ok {
			prev.Cancel()
			<-prev.Done()
		}
		h, started := g.Start(key, fn)
		if _, closed := h.(closedHandle); started || closed {
			return h
		}
	}
}

func (g *Group) remove(key string, h Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.handles[key]; ok && cur == h {
		delete(g.handles, key)
	}
}

// Cancel stops the handle under key, if any.
func (g *Group) Cancel(key string) {
	g.mu.Lock()
	h, ok := g.handles[key]
	g.mu.Unlock()
	if ok {
		h.Cancel()
	}
}

// Active returns the number of running handles.
func (g *Group) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, h := range g.handles {
		select {
		case <-h.Done():
		default:
			n++
		}
	}
	return n
}

// Wait blocks until every started handle has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Close cancels every handle and waits for all of them.
func (g *Group) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()
	g.wg.Wait()
}

type closedHandle struct{}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (closedHandle) Cancel()               {}
func (closedHandle) Done() <-chan struct{} { return closedCh }
