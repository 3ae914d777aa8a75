// Package clock abstracts wall-clock time and tickers so components that
// run timer-driven loops can be tested deterministically.
package clock

import "time"

// Clock provides the current time and ticker construction.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers periodic ticks and can be retargeted or stopped.
type Ticker interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

// Real is a Clock backed by the time package.
type Real struct{}

// New returns the real wall-clock Clock.
func New() Clock {
	return Real{}
}

// Now returns the current wall-clock time.
func (Real) Now() time.Time {
	return time.Now()
}

// NewTicker returns a ticker backed by time.Ticker.
func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time    { return rt.t.C }
func (rt *realTicker) Reset(d time.Duration)  { rt.t.Reset(d) }
func (rt *realTicker) Stop()                  { rt.t.Stop() }
