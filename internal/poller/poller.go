// Package poller tracks server-side processing of uploaded files. Each
// progress token gets one poll chain that runs until the backend reports
// a terminal status, a poll fails, or the owning group is closed.
package poller

import (
	"context"
	"fmt"
	"time"

	"prism/internal/api"
	"prism/internal/logging"
	"prism/internal/metrics"
	"prism/internal/task"
)

// StatusClient is the part of api.Client the poller needs.
type StatusClient interface {
	ProcessingStatus(ctx context.Context, token string) (*api.ProcessingStatus, error)
}

// Update is one observed change of a token's processing state.
type Update struct {
	Token      string
	Name       string
	FileID     string
	Status     string
	Percentage int
	Message    string
	Attempt    int
}

// Terminal reports whether the update ends its chain.
func (u Update) Terminal() bool {
	return u.Status == api.StatusCompleted || u.Status == api.StatusFailed
}

// Sink receives updates. Apply is called from poll goroutines.
type Sink interface {
	Apply(Update)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Update)

func (f SinkFunc) Apply(u Update) { f(u) }

// Poller owns every running poll chain.
type Poller struct {
	client      StatusClient
	sink        Sink
	group       *task.Group
	interval    time.Duration
	maxAttempts int
	metrics     *metrics.Client
}

type Option func(*Poller)

// WithInterval sets the delay between polls of one token.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts bounds polls per token. Zero polls without bound.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n >= 0 {
			p.maxAttempts = n
		}
	}
}

func WithMetrics(m *metrics.Client) Option {
	return func(p *Poller) { p.metrics = m }
}

// New creates a poller whose chains live until parent is done or Close.
func New(parent context.Context, client StatusClient, sink Sink, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		sink:     sink,
		group:    task.NewGroup(parent),
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watch starts polling token. A token that is already being polled keeps
// its existing chain and that chain's handle is returned.
func (p *Poller) Watch(token, name string) task.Handle {
	h, started := p.group.Start(token, func(ctx context.Context) {
		p.run(ctx, token, name)
	})
	if started {
		logging.PollerDebug("watching %s (%s)", token, name)
	}
	return h
}

// Active returns the number of running chains.
func (p *Poller) Active() int { return p.group.Active() }

// Wait blocks until every chain has stopped on its own.
func (p *Poller) Wait() { p.group.Wait() }

// Close cancels every chain and waits for them. Cancelled chains write
// nothing further to the sink.
func (p *Poller) Close() { p.group.Close() }

func (p *Poller) run(ctx context.Context, token, name string) {
	start := time.Now()
	p.metrics.StartPoll()
	outcome := "cancelled"
	defer func() { p.metrics.FinishPoll(outcome, time.Since(start)) }()

	log := logging.Get(logging.CategoryPoller)
	for attempt := 1; ; attempt++ {
		st, err := p.client.ProcessingStatus(ctx, token)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warnw("progress check failed", "token", token, "file", name, "error", err)
			p.sink.Apply(Update{
				Token:   token,
				Name:    name,
				Status:  api.StatusFailed,
				Message: fmt.Sprintf("Error checking progress: %s", api.Reason(err)),
				Attempt: attempt,
			})
			outcome = "failed"
			return
		}
		if st.FileID == "" {
			// Nothing to report against; the job is unknown to the backend.
			log.Debugw("status without file_id, stopping", "token", token)
			outcome = "unknown"
			return
		}

		u := Update{
			Token:      token,
			Name:       name,
			FileID:     st.FileID,
			Status:     st.Status,
			Percentage: int(st.Progress),
			Message:    st.CurrentStep,
			Attempt:    attempt,
		}
		p.sink.Apply(u)
		if u.Terminal() {
			logging.Poller("%s %s after %d checks", name, u.Status, attempt)
			outcome = u.Status
			return
		}

		if p.maxAttempts > 0 && attempt >= p.maxAttempts {
			p.sink.Apply(Update{
				Token:      token,
				Name:       name,
				FileID:     st.FileID,
				Status:     api.StatusFailed,
				Percentage: u.Percentage,
				Message:    fmt.Sprintf("Processing did not finish after %d checks", attempt),
				Attempt:    attempt,
			})
			outcome = "failed"
			return
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
