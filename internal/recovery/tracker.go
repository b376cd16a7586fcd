package recovery

import (
	"sync"
	"time"
)

// Tracker remembers when each endpoint entered recovery and answers the
// current ramp ratio for it. Safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	starts map[string]time.Time
	ramp   RecoverRatio
	now    func() time.Time
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker using ramp.
func NewTracker(ramp RecoverRatio, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		starts: make(map[string]time.Time),
		ramp:   ramp,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins (or restarts) the ramp for id at the current time.
func (t *Tracker) Start(id string) {
	t.mu.Lock()
	t.starts[id] = t.now()
	t.mu.Unlock()
}

// Ratio returns the ramp fraction for id. ok is false when id is not
// recovering; a completed ramp is forgotten.
func (t *Tracker) Ratio(id string) (float64, bool) {
	t.mu.RLock()
	start, found := t.starts[id]
	t.mu.RUnlock()
	if !found {
		return 0, false
	}

	ratio, ok := t.ramp.Ratio(t.now().Sub(start))
	if !ok {
		t.mu.Lock()
		if cur, still := t.starts[id]; still && cur.Equal(start) {
			delete(t.starts, id)
		}
		t.mu.Unlock()
	}
	return ratio, ok
}

// Recovering reports whether id is inside its ramp.
func (t *Tracker) Recovering(id string) bool {
	_, ok := t.Ratio(id)
	return ok
}

// Forget drops the ramp for id.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	delete(t.starts, id)
	t.mu.Unlock()
}
