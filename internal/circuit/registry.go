package circuit

import (
	"sort"
	"sync"

	"github.com/vietddude/livecluster/internal/policy"
)

type entry struct {
	policy  *policy.CircuitBreakPolicy
	breaker *Breaker
}

// Registry owns one Breaker per policy key. A breaker is rebuilt when the
// policy instance for its key changes.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]entry)}
}

// Breaker returns the breaker for key, creating it on first use.
func (r *Registry) Breaker(key string, p *policy.CircuitBreakPolicy) *Breaker {
	r.mu.RLock()
	e, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok && e.policy == p {
		return e.breaker
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.breakers[key]; ok && e.policy == p {
		return e.breaker
	}
	b := NewBreaker(key, p)
	r.breakers[key] = entry{policy: p, breaker: b}
	return b
}

// Snapshot returns stats for every endpoint of every breaker, ordered by key
// then endpoint.
func (r *Registry) Snapshot() []Stats {
	r.mu.RLock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, e := range r.breakers {
		breakers = append(breakers, e.breaker)
	}
	r.mu.RUnlock()

	var out []Stats
	for _, b := range breakers {
		out = append(out, b.Snapshot()...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	return out
}
