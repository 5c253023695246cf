package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects requests after
// repeated upstream failures.
var ErrCircuitOpen = errors.New("fetcher: circuit breaker is open")

// BreakerConfig tunes the circuit breaker protecting outbound fetches.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that trips the circuit.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing probes.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of successful probes needed to close
	// the circuit again.
	HalfOpenMaxSuccesses uint32
}

// Breaker wraps gobreaker so one misbehaving site cannot stall every
// scrape request behind it.
type Breaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker with the default thresholds: trip after 3
// consecutive failures, stay open for 30 seconds, close after 2 probes.
func NewBreaker() *Breaker {
	return NewBreakerWithConfig(BreakerConfig{
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	})
}

// NewBreakerWithConfig creates a breaker with custom thresholds.
func NewBreakerWithConfig(config BreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:        "url-fetcher",
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
	}
	return &Breaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker, honoring ctx cancellation before
// the call is attempted.
func (b *Breaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.breaker.Execute(func() (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// State reports the breaker state as "closed", "open" or "half-open".
func (b *Breaker) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
