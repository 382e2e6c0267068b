// Package circuitbreaker guards calls to a flaky collaborator. It keeps a
// failing XP counter backend from being hammered inline: when the circuit
// opens, reconciliation degrades to the periodic recovery sweep.
//
// The circuit is closed in normal operation. A streak of failures opens it,
// and every call is rejected with ErrCircuitOpen until a timeout passes.
// Then the circuit admits a limited number of probe calls (half-open); a
// streak of probe successes closes it again, a probe failure reopens it.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the position of the circuit.
type State int

const (
	StateClosed State = iota
	StateOpen
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
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the circuit rejects all calls.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when the half-open probe quota is
	// already in flight.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds circuit breaker tuning.
type Config struct {
	// Name identifies the breaker in logs and state-change callbacks.
	Name string

	// FailureThreshold is the consecutive-failure streak that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the probe-success streak that closes it again.
	SuccessThreshold int

	// Timeout is how long the circuit stays open before admitting probes.
	Timeout time.Duration

	// MaxHalfOpenInFlight bounds concurrent probe calls.
	MaxHalfOpenInFlight int

	// OnStateChange fires on every transition.
	OnStateChange func(name string, from, to State)

	// IsFailure decides whether an error counts against the circuit.
	// Nil means every non-nil error counts.
	IsFailure func(error) bool
}

// Option adjusts the breaker Config.
type Option func(*Config)

// WithFailureThreshold sets the streak that opens the circuit.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the probe streak that closes the circuit.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

// WithTimeout sets the open-state cooldown.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithOnStateChange installs a transition callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

// WithIsFailure installs a failure classifier, letting expected errors
// (validation, not-found) pass through without tripping the circuit.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

// Counts is a snapshot of the breaker's counters.
type Counts struct {
	Requests             int
	TotalSuccesses       int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

// CircuitBreaker tracks call outcomes and opens under sustained failure.
type CircuitBreaker struct {
	config Config

	mu             sync.Mutex
	state          State
	counts         Counts
	openedAt       time.Time
	probesInFlight int
}

// New creates a closed breaker. Defaults: open after 5 consecutive
// failures, stay open 30s, close after 2 probe successes.
func New(name string, opts ...Option) *CircuitBreaker {
	config := Config{
		Name:                name,
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenInFlight: 1,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &CircuitBreaker{config: config}
}

// Execute runs fn if the circuit admits the call and records the outcome.
// Rejected calls return ErrCircuitOpen or ErrTooManyRequests without
// invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

// State returns the current position of the circuit.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns a snapshot of the counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.openedAt) < cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probesInFlight = 1
		return nil

	case StateHalfOpen:
		if cb.probesInFlight >= cb.config.MaxHalfOpenInFlight {
			return ErrTooManyRequests
		}
		cb.probesInFlight++
		return nil

	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.probesInFlight > 0 {
		cb.probesInFlight--
	}

	failed := err != nil
	if cb.config.IsFailure != nil {
		failed = cb.config.IsFailure(err)
	}

	cb.counts.Requests++
	if failed {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0

	if cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.transition(StateClosed)
		cb.counts = Counts{}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	switch cb.state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.openedAt = time.Now()
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.openedAt = time.Now()
		cb.transition(StateOpen)
	}
}

// transition fires the callback outside the hot path. Caller holds the lock.
func (cb *CircuitBreaker) transition(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.config.Name, prev, next)
	}
}
