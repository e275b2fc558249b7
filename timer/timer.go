// Package timer implements the two monotonic one-shot timers the
// engine multiplexes into its event loop: the exposure timer and the
// motor-timeout watchdog. Arming with a zero duration disarms.
package timer

import "time"

// Timer is a one-shot, edge-level, self-clearing readiness source.
// A single expiry produces exactly one receivable value on C.
type Timer struct {
	t *time.Timer
	// armedUntil is the deadline of the currently armed timer, or the
	// zero Time if disarmed.
	armedUntil time.Time
}

// New returns a disarmed timer.
func New() *Timer {
	t := time.NewTimer(0)
	if !t.Stop() {
		<-t.C
	}
	return &Timer{t: t}
}

// C is the readiness channel. It receives exactly once per arm-to-
// expiry cycle; reading it directly, or calling Arm or Disarm on an
// already-fired timer, clears the pending expiry.
func (tm *Timer) C() <-chan time.Time {
	return tm.t.C
}

// Arm the timer to fire after d. Arming with d<=0 disarms instead,
// matching the "(0,0) disarms" contract in §4.1.
func (tm *Timer) Arm(d time.Duration) {
	tm.drain()
	if d <= 0 {
		tm.armedUntil = time.Time{}
		return
	}
	tm.armedUntil = time.Now().Add(d)
	tm.t.Reset(d)
}

// Disarm cancels a pending expiry. Disarming an already-disarmed timer
// is a no-op and never raises, per the idempotence law in §8.
func (tm *Timer) Disarm() {
	tm.drain()
	tm.armedUntil = time.Time{}
}

// drain stops the underlying timer and removes any buffered tick so a
// subsequent Arm starts from a clean slate.
func (tm *Timer) drain() {
	if !tm.t.Stop() {
		select {
		case <-tm.t.C:
		default:
		}
	}
}

// Remaining reports the seconds left until expiry, rounded up if the
// remaining fraction exceeds 5*10^8 ns, per §4.1. Zero if disarmed or
// already expired.
func (tm *Timer) Remaining() int {
	if tm.armedUntil.IsZero() {
		return 0
	}
	d := time.Until(tm.armedUntil)
	if d <= 0 {
		return 0
	}
	secs := d / time.Second
	rem := d % time.Second
	if rem > 500*time.Millisecond {
		secs++
	}
	return int(secs)
}

// Armed reports whether a deadline is currently pending.
func (tm *Timer) Armed() bool {
	return !tm.armedUntil.IsZero() && time.Now().Before(tm.armedUntil)
}
