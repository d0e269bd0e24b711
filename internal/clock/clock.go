// Package clock abstracts time for the token engine so expiry logic is
// deterministic under test.
package clock

import "time"

// Clock supplies the current time. All expiry computation in the token
// engine goes through an injected Clock rather than calling time.Now
// directly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the wall-clock implementation used in production.
func System() Clock { return systemClock{} }

// Fixed is a settable Clock for tests.
type Fixed struct {
	Current time.Time
}

// NewFixed returns a Fixed clock pinned at t.
func NewFixed(t time.Time) *Fixed { return &Fixed{Current: t} }

func (f *Fixed) Now() time.Time { return f.Current }

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) { f.Current = f.Current.Add(d) }
