// Package circuitbreaker stops calling a failing dependency for a cooldown
// period. The summary cache uses it so an unreachable Redis costs one fast
// error instead of a dial timeout on every request.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown ends.
	StateOpen
	// StateHalfOpen lets a single probe through.
	StateHalfOpen
)

// String returns the string representation of the state.
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

// ErrOpen is returned without calling fn while the breaker is open or a
// probe is already in flight.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds breaker settings.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker. Default: 5
	FailureThreshold int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30s
	Cooldown time.Duration

	// OnStateChange is called with the breaker lock held; keep it short.
	OnStateChange func(name string, from, to State)

	// IsFailure decides which errors count. Nil counts every error except
	// context cancellation.
	IsFailure func(error) bool

	now func() time.Time
}

// Option configures a breaker.
type Option func(*Config)

// WithFailureThreshold sets the failure threshold.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithCooldown sets the open period.
func WithCooldown(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Cooldown = d
		}
	}
}

// WithOnStateChange sets the state change callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

// WithIsFailure sets the failure classifier.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.now = now }
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	name   string
	config Config

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a closed breaker.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}
	}
	return &CircuitBreaker{name: name, config: cfg}
}

// Execute calls fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.acquire(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.config.now().Sub(cb.openedAt) < cb.config.Cooldown {
			return ErrOpen
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return nil
	default:
		if cb.probing {
			return ErrOpen
		}
		cb.probing = true
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && cb.config.IsFailure(err)

	if cb.state == StateHalfOpen {
		cb.probing = false
		if failed {
			cb.open()
		} else {
			cb.failures = 0
			cb.setState(StateClosed)
		}
		return
	}

	if !failed {
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.config.FailureThreshold {
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.config.now()
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) setState(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, to)
	}
}

// State returns the current state. An open breaker past its cooldown still
// reports open until the next call probes.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}
