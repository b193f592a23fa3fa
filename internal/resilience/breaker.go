// Package resilience protects the external provider calls (recognition,
// response generation, synthesis) with circuit breakers and ordered
// failover.
//
// The central type is [Breaker], a classic three-state circuit breaker
// (closed → open → half-open). [Group] composes multiple instances of a
// provider type with per-entry breakers so a failing primary is bypassed in
// favour of healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is open and
// the cooldown has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker is open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed is the normal state; calls pass through.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls immediately until the cooldown elapses.
	BreakerOpen

	// BreakerHalfOpen lets a limited number of probe calls through; their
	// outcome decides whether the breaker closes or re-opens.
	BreakerHalfOpen
)

// String implements fmt.Stringer.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take the documented defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// FailureLimit is the consecutive-failure count that opens the breaker.
	// Default 5.
	FailureLimit int

	// Cooldown is how long the breaker stays open before probing. Default
	// 30s.
	Cooldown time.Duration

	// ProbeLimit is the number of half-open probe calls that must all
	// succeed to close the breaker. Default 3.
	ProbeLimit int

	// Logger for state transitions. Defaults to slog.Default().
	Logger *slog.Logger
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name         string
	failureLimit int
	cooldown     time.Duration
	probeLimit   int
	log          *slog.Logger

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// NewBreaker creates a Breaker from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeLimit <= 0 {
		cfg.ProbeLimit = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:         cfg.Name,
		failureLimit: cfg.FailureLimit,
		cooldown:     cfg.Cooldown,
		probeLimit:   cfg.ProbeLimit,
		log:          cfg.Logger,
	}
}

// Do runs fn if the breaker allows it. While open it returns
// [ErrBreakerOpen] without calling fn; half-open admits up to ProbeLimit
// probes.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.lastFailure) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probes = 0
		b.probeFails = 0
		b.log.Info("breaker half-open", "name", b.name)

	case BreakerHalfOpen:
		if b.probes >= b.probeLimit {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}

	probing := b.state == BreakerHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.lastFailure = time.Now()

	if probing {
		b.probeFails++
		b.state = BreakerOpen
		b.failures = b.failureLimit
		b.log.Warn("breaker re-opened from half-open", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.failureLimit {
		b.state = BreakerOpen
		b.log.Warn("breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probes-b.probeFails >= b.probeLimit {
			b.state = BreakerClosed
			b.failures = 0
			b.probes = 0
			b.probeFails = 0
			b.log.Info("breaker closed after successful probes", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State returns the breaker's state. An open breaker whose cooldown has
// elapsed reports half-open; the actual transition happens on the next Do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.lastFailure) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
}
