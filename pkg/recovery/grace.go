package recovery

import "time"

// GracePeriodTracker counts consecutive decode/publish errors for one
// device and decides when a sustained run of them should flip the
// device's liveness to offline, without re-marking it offline on every
// subsequent error.
type GracePeriodTracker struct {
	gracePeriod time.Duration

	consecutiveErrors int
	firstErrorTime    time.Time
	markedOffline     bool
}

// NewGracePeriodTracker builds a tracker with the given grace period,
// defaulting to 15 seconds when unset.
func NewGracePeriodTracker(gracePeriod time.Duration) *GracePeriodTracker {
	if gracePeriod == 0 {
		gracePeriod = 15 * time.Second
	}
	return &GracePeriodTracker{gracePeriod: gracePeriod}
}

// RecordError records an error and reports whether the grace period has
// now elapsed since the first error in the current run.
func (t *GracePeriodTracker) RecordError(now time.Time) bool {
	t.consecutiveErrors++
	if t.firstErrorTime.IsZero() {
		t.firstErrorTime = now
	}
	return now.Sub(t.firstErrorTime) >= t.gracePeriod
}

// RecordSuccess clears the error run, re-arming ShouldMarkOffline.
func (t *GracePeriodTracker) RecordSuccess() {
	t.consecutiveErrors = 0
	t.firstErrorTime = time.Time{}
	t.markedOffline = false
}

// ShouldMarkOffline reports whether the device should transition to
// offline now: the grace period has elapsed and it hasn't already been
// marked by this tracker since the last success.
func (t *GracePeriodTracker) ShouldMarkOffline(now time.Time) bool {
	if t.markedOffline || t.firstErrorTime.IsZero() {
		return false
	}
	return now.Sub(t.firstErrorTime) >= t.gracePeriod
}

// MarkedOffline records that the offline transition has been applied,
// so ShouldMarkOffline won't fire again until RecordSuccess resets it.
func (t *GracePeriodTracker) MarkedOffline() {
	t.markedOffline = true
}

// ConsecutiveErrors returns the current run length.
func (t *GracePeriodTracker) ConsecutiveErrors() int {
	return t.consecutiveErrors
}
