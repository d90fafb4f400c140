// Package resilience keeps the advisor answering when an upstream provider
// misbehaves. A [Breaker] stops calling a backend that keeps failing and a
// [Group] walks an ordered list of interchangeable backends, each behind its
// own breaker. [LLMFallback], [STTFallback] and [TTSFallback] apply this to
// the three provider kinds the pipeline talks to.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the backend while its breaker
// is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the mode a [Breaker] is in.
type State int

const (
	StateClosed State = iota
	StateOpen
	// StateHalfOpen lets a few probe calls through after the cool-down.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero values pick the defaults noted on
// each field.
type BreakerConfig struct {
	// Name identifies the guarded backend in hooks and logs.
	Name string

	// MaxFailures consecutive failures open the breaker. Default 5.
	MaxFailures int

	// ResetTimeout is the cool-down before probing again. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax probes must all succeed to close again. Default 3.
	HalfOpenMax int

	// IsFailure classifies errors. Default [CountsAsFailure].
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition. It runs
	// outside the breaker's lock.
	OnStateChange func(name string, from, to State)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 3
	}
	if c.IsFailure == nil {
		c.IsFailure = CountsAsFailure
	}
	return c
}

// CountsAsFailure treats every error except caller cancellation as a
// failure of the backend.
func CountsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int       // consecutive, while closed
	openedAt time.Time // start of the current cool-down
	inFlight int       // probes admitted in half-open
	passed   int       // successful probes in half-open
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), now: time.Now}
}

type transition struct{ from, to State }

// Execute calls fn unless the breaker is open and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	probe, t, err := b.admit()
	b.notify(t)
	if err != nil {
		return err
	}
	err = fn()
	b.notify(b.settle(probe, err))
	return err
}

// admit decides whether a call may proceed. probe reports whether it counts
// against the half-open budget.
func (b *Breaker) admit() (probe bool, t *transition, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, nil, ErrCircuitOpen
		}
		t = b.moveTo(StateHalfOpen)
	}
	if b.state != StateHalfOpen {
		return false, t, nil
	}
	if b.inFlight >= b.cfg.HalfOpenMax {
		return false, t, ErrCircuitOpen
	}
	b.inFlight++
	return true, t, nil
}

func (b *Breaker) settle(probe bool, err error) *transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && b.cfg.IsFailure(err)
	switch {
	case probe && failed:
		return b.trip()
	case probe && err != nil:
		b.inFlight--
	case probe:
		b.passed++
		if b.passed >= b.cfg.HalfOpenMax {
			return b.moveTo(StateClosed)
		}
	case failed:
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
			return b.trip()
		}
	case err == nil:
		b.failures = 0
	}
	return nil
}

func (b *Breaker) trip() *transition {
	b.openedAt = b.now()
	return b.moveTo(StateOpen)
}

// moveTo switches state and clears the counters of the state being left.
// Must be called with b.mu held.
func (b *Breaker) moveTo(to State) *transition {
	from := b.state
	b.state = to
	b.failures, b.inFlight, b.passed = 0, 0, 0
	if from == to {
		return nil
	}
	return &transition{from: from, to: to}
}

func (b *Breaker) notify(t *transition) {
	if t != nil && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, t.from, t.to)
	}
}

// State reports the current state. An open breaker whose cool-down has
// elapsed reports [StateHalfOpen]; the switch itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	t := b.moveTo(StateClosed)
	b.mu.Unlock()
	b.notify(t)
}
