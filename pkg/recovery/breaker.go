// Package recovery provides two pieces of failure handling for cloud
// operations: a github.com/sony/gobreaker-backed circuit breaker for
// cloud connect attempts, and a grace-period tracker that decides
// when a device's repeated decode errors should mark it offline.
package recovery

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/errors"
)

// BreakerConfig holds the tuning knobs (max failures before opening,
// recovery timeout, half-open trial count) applied to gobreaker's
// settings.
type BreakerConfig struct {
	MaxFailures      uint32
	Timeout          time.Duration
	HalfOpenMaxTries uint32
}

// Breaker wraps a gobreaker.CircuitBreaker scoped to one account's cloud
// operations, so a run of vendor-side failures fails fast instead of
// hammering the vendor's endpoint on every reconnect attempt. The
// account supervisor routes its cloud session connect attempts through
// it; auth stage HTTP calls do not pass through it.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker builds a Breaker for the given account name, applying
// defaults (5 failures, 30s timeout, 3 half-open tries) where the
// caller leaves a field zero.
func NewBreaker(account string, cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxTries == 0 {
		cfg.HalfOpenMaxTries = 3
	}

	settings := gobreaker.Settings{
		Name:        "cloud:" + account,
		MaxRequests: cfg.HalfOpenMaxTries,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Call runs fn through the breaker. When the breaker is open it returns
// a TransientNet BridgeError without invoking fn, matching the class of
// error the reconnect supervisor already treats as retryable.
func (b *Breaker) Call(ctx context.Context, account, op string, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.New(errors.TransientNet, op, account, "", err)
	}
	return err
}

// State reports the breaker's current state for metrics/logging.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
