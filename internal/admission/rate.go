package admission

import "sync"

// RateGate is a leaky-bucket permit scheduler: permits are spaced one
// interval apart rather than counted per fixed window.
type RateGate struct {
	mu       sync.Mutex
	interval int64
	next     int64
}

// NewRateGate creates a gate granting one permit per intervalMicros.
func NewRateGate(intervalMicros int64) *RateGate {
	return &RateGate{interval: intervalMicros}
}

// TryAcquire grants a permit if nowMicros has reached the next permit time.
// After an idle period the schedule restarts from now so unused permits are
// not hoarded.
func (g *RateGate) TryAcquire(nowMicros int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if nowMicros < g.next {
		return false
	}
	if nowMicros-g.next > g.interval {
		g.next = nowMicros + g.interval
	} else {
		g.next += g.interval
	}
	return true
}

// Interval returns the permit spacing in microseconds.
func (g *RateGate) Interval() int64 {
	return g.interval
}
