package suggest

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls pass through
	BreakerOpen                         // calls short-circuit to fallback
	BreakerHalfOpen                     // one probe allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "closed"
}

// Breaker guards the backend. It opens after threshold consecutive
// failures and lets a single probe through once reset has elapsed.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	threshold   int
	reset       time.Duration
	lastFailure time.Time
	probing     bool
	clock       clockwork.Clock
}

// NewBreaker creates a breaker. Zero values default to 5 failures and 30s.
func NewBreaker(threshold int, reset time.Duration, clock clockwork.Clock) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if reset <= 0 {
		reset = 30 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Breaker{threshold: threshold, reset: reset, clock: clock}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Allow reports whether a call may proceed. In half-open only the first
// caller is admitted until it records its outcome.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	switch b.state {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
	}
	return true
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = b.clock.Now()
	b.probing = false
	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = BreakerOpen
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
	}
}

// must hold mu
func (b *Breaker) maybeHalfOpen() {
	if b.state == BreakerOpen && b.clock.Since(b.lastFailure) >= b.reset {
		b.state = BreakerHalfOpen
		b.probing = false
	}
}
