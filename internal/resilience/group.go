package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [Group] fails or has an
// open breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// entry pairs a provider value with its dedicated breaker.
type entry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group wraps a primary and zero or more fallback instances of the same
// provider type. When the primary fails or its breaker is open, the next
// healthy fallback is tried in registration order.
type Group[T any] struct {
	entries []entry[T]
	cfg     BreakerConfig
	log     *slog.Logger
}

// NewGroup creates a Group with primary as its first entry. cfg.Name is
// replaced per entry.
func NewGroup[T any](primary T, primaryName string, cfg BreakerConfig) *Group[T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	g := &Group[T]{cfg: cfg, log: cfg.Logger}
	g.add(primaryName, primary)
	return g
}

// AddFallback appends a fallback provider, tried after all earlier entries.
func (g *Group[T]) AddFallback(name string, fallback T) {
	g.add(name, fallback)
}

func (g *Group[T]) add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.entries = append(g.entries, entry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Try runs fn against each entry in order until one succeeds. Entries with
// open breakers are skipped. Returns [ErrAllFailed] wrapping the last error
// when every entry fails.
func (g *Group[T]) Try(fn func(T) error) error {
	var lastErr error
	for i := range g.entries {
		e := &g.entries[i]
		err := e.breaker.Do(func() error { return fn(e.value) })
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			g.log.Debug("skipping provider, breaker open", "provider", e.name)
		} else {
			g.log.Warn("provider failed, trying next", "provider", e.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// TryResult runs fn against each entry in the group until one succeeds,
// returning the result. Package-level because Go does not support
// method-level type parameters.
func TryResult[T, R any](g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.entries {
		e := &g.entries[i]
		var result R
		err := e.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(e.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			g.log.Debug("skipping provider, breaker open", "provider", e.name)
		} else {
			g.log.Warn("provider failed, trying next", "provider", e.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
