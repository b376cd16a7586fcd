package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/livecluster/internal/core/domain"
	"github.com/vietddude/livecluster/internal/infra/metrics"
	"github.com/vietddude/livecluster/internal/policy"
)

type concurrencyEntry struct {
	policy *policy.ConcurrencyLimitPolicy
	gate   *ConcurrencyGate
}

type rateEntry struct {
	policy *policy.SlidingWindow
	gate   *RateGate
}

type loadEntry struct {
	policy *policy.LoadLimitPolicy
	gate   *LoadGate
}

// Registry owns the gates of every policy key. Gates are created lazily and
// replaced when the policy instance for a key changes.
type Registry struct {
	mu          sync.RWMutex
	concurrency map[string]concurrencyEntry
	rates       map[string]rateEntry
	loads       map[string]loadEntry

	metrics MetricSource
	now     func() time.Time
}

// NewRegistry creates a registry. metrics may be nil, which disables load
// shedding.
func NewRegistry(metrics MetricSource) *Registry {
	return &Registry{
		concurrency: make(map[string]concurrencyEntry),
		rates:       make(map[string]rateEntry),
		loads:       make(map[string]loadEntry),
		metrics:     metrics,
		now:         time.Now,
	}
}

// Admit runs the concurrency, rate and load gates configured in set. On
// success the returned release func must be called when the call finishes.
func (r *Registry) Admit(ctx context.Context, key string, set *policy.Set) (func(), error) {
	release := func() {}

	if set.Concurrency != nil {
		rel, err := r.concurrencyGate(key, set.Concurrency).Acquire(ctx)
		if err != nil {
			r.recordRejection(key, err)
			return nil, err
		}
		release = rel
	}

	if set.Rate != nil {
		if !r.rateGate(key, set.Rate).TryAcquire(r.now().UnixMicro()) {
			release()
			err := &domain.RejectedError{Gate: GateRate, Key: key, Reason: fmt.Sprintf(
				"more than %d calls per %s", set.Rate.Threshold, set.Rate.Window)}
			r.recordRejection(key, err)
			return nil, err
		}
	}

	if set.Load != nil && r.metrics != nil {
		gate := r.loadGate(key, set.Load)
		m := r.metrics.Current()
		if !gate.Admit(m) {
			release()
			err := &domain.RejectedError{Gate: GateLoad, Key: key, Reason: fmt.Sprintf(
				"shedding %d%% at cpu %.1f load %.2f", gate.ShouldThrottle(m), m.CPUUsage, m.LoadUsage)}
			r.recordRejection(key, err)
			return nil, err
		}
	}

	return release, nil
}

func (r *Registry) concurrencyGate(key string, p *policy.ConcurrencyLimitPolicy) *ConcurrencyGate {
	r.mu.RLock()
	e, ok := r.concurrency[key]
	r.mu.RUnlock()
	if ok && e.policy == p {
		return e.gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.concurrency[key]; ok && e.policy == p {
		return e.gate
	}
	g := NewConcurrencyGate(key, p.MaxConcurrency, p.MaxWait)
	r.concurrency[key] = concurrencyEntry{policy: p, gate: g}
	return g
}

func (r *Registry) rateGate(key string, p *policy.SlidingWindow) *RateGate {
	r.mu.RLock()
	e, ok := r.rates[key]
	r.mu.RUnlock()
	if ok && e.policy == p {
		return e.gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.rates[key]; ok && e.policy == p {
		return e.gate
	}
	g := NewRateGate(p.PermitIntervalMicros())
	r.rates[key] = rateEntry{policy: p, gate: g}
	return g
}

func (r *Registry) loadGate(key string, p *policy.LoadLimitPolicy) *LoadGate {
	r.mu.RLock()
	e, ok := r.loads[key]
	r.mu.RUnlock()
	if ok && e.policy == p {
		return e.gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.loads[key]; ok && e.policy == p {
		return e.gate
	}
	g := NewLoadGate(p)
	r.loads[key] = loadEntry{policy: p, gate: g}
	return g
}

func (r *Registry) recordRejection(key string, err error) {
	gate := "context"
	if re, ok := err.(*domain.RejectedError); ok {
		gate = re.Gate
	}
	metrics.AdmissionRejectionsTotal.WithLabelValues(key, gate).Inc()
}
