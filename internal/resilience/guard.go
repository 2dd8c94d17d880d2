// Package resilience guards idempotent backend reads. Each read operation
// (documents, folders, model-status, ...) gets its own circuit breaker, so
// the periodic status refresh stops hitting a backend that is down, and
// transient failures can be retried with a doubling backoff.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"prism/internal/logging"
)

// ErrUnavailable is wrapped into every error returned while a breaker is
// open, so callers can tell "backend down, not tried" from a real failure.
var ErrUnavailable = errors.New("backend unavailable")

// Unavailable reports whether err came from an open breaker.
func Unavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Transient decides whether a failed read may be retried and whether it
// counts against the breaker. Rejections (4xx, success:false) do neither.
type Transient func(err error) bool

// Guard runs reads under a Policy.
type Guard struct {
	policy    Policy
	transient Transient

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

// NewGuard returns a guard that treats errors for which transient returns
// true as backend failures. A nil transient treats every error that way.
func NewGuard(p Policy, transient Transient) *Guard {
	if transient == nil {
		transient = func(error) bool { return true }
	}
	return &Guard{
		policy:    p.withDefaults(),
		transient: transient,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Do runs read for op.
func (g *Guard) Do(ctx context.Context, op string, read func(context.Context) error) error {
	if !g.policy.Breaker {
		return g.retry(ctx, op, read)
	}
	_, err := g.breaker(op).Execute(func() (struct{}, error) {
		return struct{}{}, g.retry(ctx, op, read)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w (%w)", op, ErrUnavailable, err)
	}
	return err
}

func (g *Guard) retry(ctx context.Context, op string, read func(context.Context) error) error {
	wait := g.policy.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = read(ctx)
		if err == nil || attempt >= g.policy.Attempts || !g.transient(err) {
			return err
		}

		logging.Get(logging.CategoryAPI).Debugw("retrying read", "op", op, "attempt", attempt, "backoff", wait, "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		wait = min(wait*2, g.policy.MaxBackoff)
	}
}

func (g *Guard) breaker(op string) *gobreaker.CircuitBreaker[struct{}] {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.breakers[op]; ok {
		return b
	}
	p := g.policy
	b := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: 1,
		Timeout:     p.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= p.MinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= p.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || !g.transient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Get(logging.CategoryAPI).Warnw("backend breaker changed", "op", name, "from", from.String(), "to", to.String())
		},
	})
	g.breakers[op] = b
	return b
}
