package admission

import (
	"math/rand/v2"

	"github.com/vietddude/livecluster/internal/core/domain"
	"github.com/vietddude/livecluster/internal/policy"
)

// MetricSource supplies the current host load.
type MetricSource interface {
	Current() domain.LoadMetric
}

// LoadGate sheds a fraction of traffic according to a LoadLimitPolicy.
type LoadGate struct {
	policy *policy.LoadLimitPolicy
	draw   func(n int) int
}

// NewLoadGate creates a gate for p. Cache is called on p.
func NewLoadGate(p *policy.LoadLimitPolicy) *LoadGate {
	p.Cache()
	return &LoadGate{policy: p, draw: rand.IntN}
}

// ShouldThrottle returns the shedding ratio in [0,100] for m.
func (g *LoadGate) ShouldThrottle(m domain.LoadMetric) int {
	return g.policy.Ratio(m)
}

// Admit draws against the current ratio and reports whether the call may
// proceed.
func (g *LoadGate) Admit(m domain.LoadMetric) bool {
	ratio := g.ShouldThrottle(m)
	switch {
	case ratio <= 0:
		return true
	case ratio >= 100:
		return false
	default:
		return g.draw(100) >= ratio
	}
}
