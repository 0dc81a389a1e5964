package backend

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the position of the circuit breaker. The numeric value
// is exported as the breaker gauge.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	case BreakerOpen:
		return "open"
	}
	return "unknown"
}

// ErrBreakerOpen is returned by Allow while the backend is considered down.
var ErrBreakerOpen = errors.New("backend: circuit breaker open")

// Breaker stops calling the backend after consecutive 5xx or transport
// failures and probes it again once the cool-down has passed.
type Breaker struct {
	failureThreshold int
	successThreshold int
	coolDown         time.Duration
	onChange         func(BreakerState)
	now              func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker builds a breaker. onChange, if set, is called with the lock
// held whenever the state moves.
func NewBreaker(failureThreshold, successThreshold int, coolDown time.Duration, onChange func(BreakerState)) *Breaker {
	if failureThreshold < 1 {
		failureThreshold = 5
	}
	if successThreshold < 1 {
		successThreshold = 2
	}
	if coolDown <= 0 {
		coolDown = 30 * time.Second
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		coolDown:         coolDown,
		onChange:         onChange,
		now:              time.Now,
	}
}

func (b *Breaker) moveTo(s BreakerState) {
	if b.state == s {
		return
	}
	b.state = s
	b.failures, b.successes = 0, 0
	if s == BreakerOpen {
		b.openedAt = b.now()
	}
	if b.onChange != nil {
		b.onChange(s)
	}
}

// refresh moves an expired open breaker to half-open. Callers hold mu.
func (b *Breaker) refresh() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.coolDown {
		b.moveTo(BreakerHalfOpen)
	}
}

// Allow returns ErrBreakerOpen when calls must not be attempted.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	if b.state == BreakerOpen {
		return ErrBreakerOpen
	}
	return nil
}

// Success records a call that reached a healthy backend.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.moveTo(BreakerClosed)
		}
	}
}

// Failure records a call that failed for infrastructure reasons.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.moveTo(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.moveTo(BreakerOpen)
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}
