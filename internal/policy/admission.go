package policy

import (
	"errors"
	"sync"
	"time"
)

// ConcurrencyLimitPolicy bounds in-flight calls. A call that cannot get a
// slot within MaxWait is rejected.
type ConcurrencyLimitPolicy struct {
	MaxConcurrency int           `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	MaxWait        time.Duration `yaml:"max_wait"        mapstructure:"max_wait"`
}

// Validate checks bounds.
func (p *ConcurrencyLimitPolicy) Validate() error {
	if p.MaxConcurrency <= 0 {
		return errors.New("max_concurrency must be > 0")
	}
	if p.MaxWait < 0 {
		return errors.New("max_wait must be >= 0")
	}
	return nil
}

// SlidingWindow spaces Threshold permits evenly across Window.
type SlidingWindow struct {
	Threshold int           `yaml:"threshold" mapstructure:"threshold"`
	Window    time.Duration `yaml:"window"    mapstructure:"window"`

	once     sync.Once
	interval int64
}

// Validate checks bounds.
func (w *SlidingWindow) Validate() error {
	if w.Threshold <= 0 {
		return errors.New("rate threshold must be > 0")
	}
	if w.Window <= 0 {
		return errors.New("rate window must be > 0")
	}
	return nil
}

// PermitIntervalMicros is Window/Threshold in microseconds, computed once.
func (w *SlidingWindow) PermitIntervalMicros() int64 {
	w.once.Do(func() {
		if w.Threshold > 0 {
			w.interval = w.Window.Microseconds() / int64(w.Threshold)
		}
	})
	return w.interval
}
