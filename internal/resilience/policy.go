package resilience

import "time"

// Policy tunes how idempotent backend reads are guarded. Mutating calls
// never go through a Guard.
type Policy struct {
	// Attempts is the number of tries per read; 1 disables retries.
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration

	Breaker      bool
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// DefaultPolicy trips after 5 reads at a 60% failure rate and tries again
// after 30s. Reads are not retried.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:     1,
		Backoff:      200 * time.Millisecond,
		MaxBackoff:   2 * time.Second,
		Breaker:      true,
		MinRequests:  5,
		FailureRatio: 0.6,
		OpenTimeout:  30 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Attempts < 1 {
		p.Attempts = def.Attempts
	}
	if p.Backoff <= 0 {
		p.Backoff = def.Backoff
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	if p.MinRequests == 0 {
		p.MinRequests = def.MinRequests
	}
	if p.FailureRatio <= 0 || p.FailureRatio > 1 {
		p.FailureRatio = def.FailureRatio
	}
	if p.OpenTimeout <= 0 {
		p.OpenTimeout = def.OpenTimeout
	}
	return p
}
