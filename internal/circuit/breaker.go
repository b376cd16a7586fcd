// Package circuit tracks endpoint health per policy key and decides whether
// an endpoint may receive traffic.
//
// An endpoint opens after FailureThreshold consecutive counted failures and
// stays open for OpenDuration. It then half-opens and is admitted with the
// probability given by the recovery ramp until the ramp completes, at which
// point it closes. A failure while half-open reopens it immediately.
package circuit

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/vietddude/livecluster/internal/infra/metrics"
	"github.com/vietddude/livecluster/internal/policy"
	"github.com/vietddude/livecluster/internal/recovery"
)

// State of an endpoint's circuit.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type endpointStats struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	consecutiveFails int
	openedAt         time.Time
	state            State
}

// Stats is a point-in-time view of one endpoint.
type Stats struct {
	Key              string
	Endpoint         string
	State            State
	Successes        int
	Failures         int
	ConsecutiveFails int
	AvgLatency       time.Duration
	LastFailureAt    time.Time
}

// Breaker holds the circuits of every endpoint used under one policy key.
type Breaker struct {
	key    string
	policy *policy.CircuitBreakPolicy

	mu        sync.Mutex
	endpoints map[string]*endpointStats
	ramp      *recovery.Tracker
	now       func() time.Time
	draw      func() float64
}

// NewBreaker creates a breaker for key governed by p.
func NewBreaker(key string, p *policy.CircuitBreakPolicy) *Breaker {
	return newBreaker(key, p, time.Now, rand.Float64)
}

func newBreaker(key string, p *policy.CircuitBreakPolicy, now func() time.Time, draw func() float64) *Breaker {
	return &Breaker{
		key:       key,
		policy:    p,
		endpoints: make(map[string]*endpointStats),
		ramp:      recovery.NewTracker(p.Recover, recovery.WithClock(now)),
		now:       now,
		draw:      draw,
	}
}

// Policy returns the governing policy.
func (b *Breaker) Policy() *policy.CircuitBreakPolicy {
	return b.policy
}

// Allow reports whether endpoint id may receive this call. Half-open
// endpoints are admitted with the current ramp probability.
func (b *Breaker) Allow(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.endpoints[id]
	if !ok {
		return true
	}
	switch b.advance(id, s) {
	case StateOpen:
		return false
	case StateHalfOpen:
		ratio, ramping := b.ramp.Ratio(id)
		if !ramping {
			b.setState(id, s, StateClosed)
			return true
		}
		return b.draw() < ratio
	default:
		return true
	}
}

// State returns the current state of endpoint id.
func (b *Breaker) State(id string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.endpoints[id]
	if !ok {
		return StateClosed
	}
	state := b.advance(id, s)
	if state == StateHalfOpen && !b.ramp.Recovering(id) {
		b.setState(id, s, StateClosed)
		return StateClosed
	}
	return state
}

// RecordSuccess records a successful call to id.
func (b *Breaker) RecordSuccess(id string, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats(id)
	s.successCount++
	s.totalLatency += latency
	s.lastSuccessAt = b.now()
	s.consecutiveFails = 0
}

// RecordFailure records a counted failure on id and trips the circuit when
// the threshold is reached.
func (b *Breaker) RecordFailure(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats(id)
	s.failureCount++
	s.lastFailureAt = b.now()
	s.consecutiveFails++

	switch b.advance(id, s) {
	case StateHalfOpen:
		b.open(id, s)
	case StateClosed:
		if s.consecutiveFails >= b.policy.FailureThreshold {
			b.open(id, s)
		}
	}
}

// Snapshot returns the stats of every known endpoint.
func (b *Breaker) Snapshot() []Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Stats, 0, len(b.endpoints))
	for id, s := range b.endpoints {
		st := Stats{
			Key:              b.key,
			Endpoint:         id,
			State:            s.state,
			Successes:        s.successCount,
			Failures:         s.failureCount,
			ConsecutiveFails: s.consecutiveFails,
			LastFailureAt:    s.lastFailureAt,
		}
		if s.successCount > 0 {
			st.AvgLatency = s.totalLatency / time.Duration(s.successCount)
		}
		out = append(out, st)
	}
	return out
}

func (b *Breaker) stats(id string) *endpointStats {
	s, ok := b.endpoints[id]
	if !ok {
		s = &endpointStats{lastSuccessAt: b.now()}
		b.endpoints[id] = s
	}
	return s
}

// advance moves an open circuit to half-open once OpenDuration has passed.
// Callers hold b.mu.
func (b *Breaker) advance(id string, s *endpointStats) State {
	if s.state == StateOpen && b.now().Sub(s.openedAt) >= b.policy.OpenDuration {
		b.ramp.Start(id)
		b.setState(id, s, StateHalfOpen)
	}
	return s.state
}

func (b *Breaker) open(id string, s *endpointStats) {
	s.openedAt = b.now()
	b.ramp.Forget(id)
	b.setState(id, s, StateOpen)
}

func (b *Breaker) setState(id string, s *endpointStats, state State) {
	s.state = state
	if state == StateClosed {
		s.consecutiveFails = 0
	}
	metrics.CircuitState.WithLabelValues(b.key, id).Set(float64(state))
}
