// Package reconnect implements the three-tier recovery supervisor:
// simple reconnect, full re-auth, and exponential backoff, with
// escalation rules driven by the previous attempt's outcome.
package reconnect

import (
	"context"
	"time"

	"github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/logger"
)

// Tier identifies one of the three recovery strategies.
type Tier int

const (
	TierSimple Tier = iota
	TierFullReauth
	TierBackoff
)

func (t Tier) String() string {
	switch t {
	case TierSimple:
		return "simple"
	case TierFullReauth:
		return "full-reauth"
	case TierBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// DefaultBackoffSchedule is the reconnect delay table, capped at its
// last element for any attempt beyond its length.
var DefaultBackoffSchedule = []time.Duration{
	5 * time.Second, 10 * time.Second, 15 * time.Second,
	30 * time.Second, 45 * time.Second, 60 * time.Second,
}

// BackoffDelay returns the delay for the n-th retry (1-indexed):
// delays[min(n-1, len(delays)-1)].
func BackoffDelay(schedule []time.Duration, attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}

// Actions is the set of callbacks the supervisor drives. All are
// provided by the owning bridge/account session.
type Actions struct {
	// SimpleReconnect redoes WebSocket+MQTT CONNECT and resubscribes
	// using still-valid cached tokens.
	SimpleReconnect func(ctx context.Context) error
	// FullReauth clears in-memory tokens, invalidates the account's
	// cache entries, and reruns S1-S4 before reconnecting.
	FullReauth func(ctx context.Context) error
	// InvalidateCache is called once, before FullReauth, specifically
	// when the loss was a CONNACK-5 rejection: the login token is
	// cleared first, then the mqtt token is re-derived from it.
	InvalidateCache func(ctx context.Context) error
}

// Supervisor drives one account's recovery state machine. Not safe for
// concurrent use from multiple goroutines; one supervisor per account.
type Supervisor struct {
	actions     Actions
	schedule    []time.Duration
	maxAttempts int
	log         logger.Logger

	attempt    int
	timer      *time.Timer
	terminalCh chan struct{}
}

// New constructs a Supervisor. maxAttempts default 10.
func New(actions Actions, maxAttempts int, log logger.Logger) *Supervisor {
	if maxAttempts == 0 {
		maxAttempts = 10
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Supervisor{
		actions:     actions,
		schedule:    DefaultBackoffSchedule,
		maxAttempts: maxAttempts,
		log:         log,
		terminalCh:  make(chan struct{}),
	}
}

// Reason describes why a session was lost, driving tier selection and
// cache invalidation.
type Reason struct {
	// ConnackRejected is true iff the loss was CONNACK return code 5.
	ConnackRejected bool
}

// nextTier escalates within a single loss episode: the first attempt
// always tries a cheap simple reconnect (reusing still-valid cached
// tokens), and any failure after that escalates to a full re-auth for
// the rest of the episode. A CONNACK rejection is assumed to mean the
// cached tokens are no longer good, so it skips straight to full
// re-auth even on the first attempt. The backoff delay between
// attempts is applied unconditionally by Recover, independent of tier.
func (s *Supervisor) nextTier(reason Reason) Tier {
	if reason.ConnackRejected {
		return TierFullReauth
	}
	if s.attempt <= 1 {
		return TierSimple
	}
	return TierFullReauth
}

// Recover runs one recovery episode to completion: it keeps attempting
// tiers (separated by backoff delays once more than one attempt is
// needed) until success, a terminal attempt-count exhaustion, or ctx
// cancellation.
func (s *Supervisor) Recover(ctx context.Context, reason Reason) error {
	s.attempt = 0

	for {
		s.attempt++
		if s.attempt > s.maxAttempts {
			s.log.Error("reconnect attempts exhausted (%d), emitting terminal", s.maxAttempts)
			close(s.terminalCh)
			return errTerminal{}
		}

		tier := s.nextTier(reason)
		s.log.Info("reconnect attempt %d using tier %s", s.attempt, tier)

		var err error
		switch tier {
		case TierFullReauth:
			if reason.ConnackRejected && s.actions.InvalidateCache != nil {
				if ierr := s.actions.InvalidateCache(ctx); ierr != nil {
					s.log.Warn("cache invalidation failed: %v", ierr)
				}
				reason.ConnackRejected = false // consumed; don't re-invalidate on retries of this episode
			}
			err = s.actions.FullReauth(ctx)
		default:
			err = s.actions.SimpleReconnect(ctx)
		}

		if err == nil {
			return nil
		}

		s.log.Warn("reconnect attempt %d (tier %s) failed: %v", s.attempt, tier, err)

		if s.attempt >= 1 {
			delay := BackoffDelay(s.schedule, s.attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
}

// Terminal returns a channel closed once the supervisor gives up after
// max_reconnect_attempts.
func (s *Supervisor) Terminal() <-chan struct{} {
	return s.terminalCh
}

// Cancel stops s.timer if one is set. Recover does not arm it: its
// backoff waits end early only through ctx cancellation.
func (s *Supervisor) Cancel() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

type errTerminal struct{}

func (errTerminal) Error() string { return "reconnect: max attempts exhausted" }
