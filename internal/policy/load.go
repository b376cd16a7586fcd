package policy

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vietddude/livecluster/internal/core/domain"
)

// ErrNotCompiled is the panic value when a LoadLimitPolicy is read before
// Cache has run.
var ErrNotCompiled = errors.New("load limit policy read before Cache")

// LoadLimitThrottle sheds Ratio percent of traffic once every configured
// threshold is reached. Unset thresholds inherit the policy defaults.
type LoadLimitThrottle struct {
	CPU   *float64 `yaml:"cpu"   mapstructure:"cpu"`
	Load  *float64 `yaml:"load"  mapstructure:"load"`
	Ratio int      `yaml:"ratio" mapstructure:"ratio"`
}

func (t LoadLimitThrottle) satisfied(m domain.LoadMetric) bool {
	if t.CPU != nil && m.CPUUsage < *t.CPU {
		return false
	}
	if t.Load != nil && m.LoadUsage < *t.Load {
		return false
	}
	return true
}

// LoadLimitPolicy is an ordered list of throttles. Cache must run before
// Ratio or Compiled are used.
type LoadLimitPolicy struct {
	CPU       *float64            `yaml:"cpu"       mapstructure:"cpu"`
	Load      *float64            `yaml:"load"      mapstructure:"load"`
	Throttles []LoadLimitThrottle `yaml:"throttles" mapstructure:"throttles"`

	mu       sync.Mutex
	compiled atomic.Pointer[[]LoadLimitThrottle]
}

// Cache merges default thresholds into the throttles and sorts them by ratio
// descending, keeping insertion order on ties. Repeated calls are no-ops.
func (p *LoadLimitPolicy) Cache() {
	if p.compiled.Load() != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.compiled.Load() != nil {
		return
	}

	throttles := make([]LoadLimitThrottle, len(p.Throttles))
	copy(throttles, p.Throttles)
	for i := range throttles {
		t := &throttles[i]
		if t.CPU == nil && p.CPU != nil {
			t.CPU = p.CPU
		}
		if t.Load == nil && p.Load != nil {
			t.Load = p.Load
		}
		t.Ratio = clampRatio(t.Ratio)
	}
	sort.SliceStable(throttles, func(i, j int) bool {
		return throttles[i].Ratio > throttles[j].Ratio
	})
	p.compiled.Store(&throttles)
}

// Compiled returns the cached throttle order. It panics if Cache was not
// called.
func (p *LoadLimitPolicy) Compiled() []LoadLimitThrottle {
	c := p.compiled.Load()
	if c == nil {
		panic(ErrNotCompiled)
	}
	return *c
}

// Ratio returns the ratio of the first throttle whose thresholds are all
// reached by m, or 0.
func (p *LoadLimitPolicy) Ratio(m domain.LoadMetric) int {
	for _, t := range p.Compiled() {
		if t.satisfied(m) {
			return t.Ratio
		}
	}
	return 0
}

func clampRatio(r int) int {
	switch {
	case r < 0:
		return 0
	case r > 100:
		return 100
	default:
		return r
	}
}
