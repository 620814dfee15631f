// Package clock provides an injectable time source so that every timer the
// server arms can be driven deterministically in tests.
//
// Production code uses Real(). Tests use Fake(t0) and call Advance; timers
// created with AfterFunc fire synchronously inside Advance in deadline order.
package clock

import "time"

type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine (Real) or inside Advance (Fake)
	// once d has elapsed.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a handle on a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the call. It returns false when the timer already fired or
// was stopped before.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}
