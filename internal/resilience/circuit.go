// Package resilience provides retry and circuit breaker wrappers for calls to
// the verification intermediary and SAT hosts.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// BreakerState is the state of one breaker.
type BreakerState int

const (
	// BreakerClosed lets every call through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen
	// BreakerProbing lets a single trial call through after the cooldown.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen matches every *OpenError.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// OpenError is returned for calls rejected by an open breaker.
type OpenError struct {
	Name string
	// RetryAfter is the time left in the cooldown. Zero while a trial call
	// is in flight.
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryAfter <= 0 {
		return fmt.Sprintf("%s: circuit breaker is open, trial call in flight", e.Name)
	}
	return fmt.Sprintf("%s: circuit breaker is open, retry in %s", e.Name, e.RetryAfter.Round(time.Second))
}

// Is reports whether target is ErrCircuitOpen.
func (e *OpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// BreakerConfig controls every breaker of a set.
type BreakerConfig struct {
	// Threshold is the number of consecutive transient failures that opens
	// the breaker.
	Threshold int
	// Cooldown is how long an open breaker rejects calls.
	Cooldown time.Duration
	// OnStateChange is called with the breaker's name on every transition,
	// with the breaker's lock held.
	OnStateChange func(name string, from, to BreakerState)
}

// DefaultBreakerConfig opens after 5 failures for 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, Cooldown: 30 * time.Second}
}

// Breaker guards one endpoint. Only errors that pass IsTransient count as
// failures, so a page that parsed but lacked fields never opens it.
// Cancelled calls count as neither success nor failure.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time

	now func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn unless the breaker rejects the call with an *OpenError.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// ExecuteVal is Execute for calls that return a value.
func ExecuteVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if left := b.cfg.Cooldown - b.now().Sub(b.openedAt); left > 0 {
			return &OpenError{Name: b.name, RetryAfter: left}
		}
		b.transition(BreakerProbing)
		return nil
	case BreakerProbing:
		return &OpenError{Name: b.name}
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case errors.Is(err, context.Canceled):
		if b.state == BreakerProbing {
			// Cooldown already elapsed; the next call is the trial.
			b.transition(BreakerOpen)
		}
	case err != nil && IsTransient(err):
		b.failures++
		if b.state == BreakerProbing || b.failures >= b.cfg.Threshold {
			b.openedAt = b.now()
			if b.state != BreakerOpen {
				b.transition(BreakerOpen)
			}
		}
	default:
		b.failures = 0
		if b.state != BreakerClosed {
			b.transition(BreakerClosed)
		}
	}
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// Breakers is a set of breakers sharing one config, created on first use.
type Breakers struct {
	cfg BreakerConfig

	mu  sync.Mutex
	set map[string]*Breaker
}

// NewBreakers creates an empty set.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, set: make(map[string]*Breaker)}
}

// Get returns the breaker named name.
func (s *Breakers) Get(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.set[name]
	if !ok {
		b = NewBreaker(name, s.cfg)
		s.set[name] = b
	}
	return b
}
