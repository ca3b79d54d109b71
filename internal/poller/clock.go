package poller

import "time"

// Ticker abstracts time.Ticker so tests can drive ticks deterministically.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock produces tickers. The zero-dependency real implementation wraps the
// standard library; tests inject a hand-cranked fake.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// RealClock is the production Clock backed by time.NewTicker.
type RealClock struct{}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }
