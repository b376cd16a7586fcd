package health

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/livecluster/internal/circuit"
	"github.com/vietddude/livecluster/internal/cluster"
	"github.com/vietddude/livecluster/internal/core/domain"
)

// CircuitSnapshotter exposes the endpoint circuits to report on.
type CircuitSnapshotter interface {
	Snapshot() []circuit.Stats
}

// Thresholds decide when a service is degraded or critical.
type Thresholds struct {
	DegradedErrorRate float64
	CriticalErrorRate float64
	MinCalls          int64
}

// DefaultThresholds mark a service degraded at 10% failed calls and critical at 50%.
var DefaultThresholds = Thresholds{
	DegradedErrorRate: 0.1,
	CriticalErrorRate: 0.5,
	MinCalls:          10,
}

type counters struct {
	calls    int64
	failures int64
	degraded int64
	rejected int64
}

// Monitor aggregates call outcomes and circuit state. It implements
// cluster.Observer so it can be attached to a LiveCluster.
type Monitor struct {
	circuits   CircuitSnapshotter
	thresholds Thresholds
	cacheTTL   time.Duration

	mu         sync.Mutex
	services   map[string]*counters
	lastCheck  time.Time
	lastReport *Report
	now        func() time.Time
}

// NewMonitor creates a health monitor over the given circuits.
func NewMonitor(circuits CircuitSnapshotter, thresholds Thresholds, cacheTTL time.Duration) *Monitor {
	return &Monitor{
		circuits:   circuits,
		thresholds: thresholds,
		cacheTTL:   cacheTTL,
		services:   make(map[string]*counters),
		now:        time.Now,
	}
}

// AttemptFinished implements cluster.Observer. Per-attempt data is exported
// through metrics; the monitor only counts logical calls.
func (m *Monitor) AttemptFinished(*domain.Request, domain.Endpoint, time.Duration, error) {}

// CallFinished implements cluster.Observer.
func (m *Monitor) CallFinished(req *domain.Request, outcome cluster.Outcome, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.services[req.Service]
	if !ok {
		c = &counters{}
		m.services[req.Service] = c
	}
	c.calls++
	switch outcome {
	case cluster.OutcomeFailed, cluster.OutcomeFailsafe:
		c.failures++
	case cluster.OutcomeDegraded:
		c.degraded++
	case cluster.OutcomeRejected:
		c.rejected++
	}
}

// CheckHealth builds a report. Results are cached for cacheTTL.
func (m *Monitor) CheckHealth(_ context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < m.cacheTTL {
		return m.lastReport
	}

	services := make(map[string]ServiceHealth, len(m.services))
	for name, c := range m.services {
		h := ServiceHealth{
			Service:  name,
			Calls:    c.calls,
			Failures: c.failures,
			Degraded: c.degraded,
			Rejected: c.rejected,
		}
		if c.calls > 0 {
			h.ErrorRate = float64(c.failures) / float64(c.calls)
		}
		services[name] = h
	}

	if m.circuits != nil {
		for _, st := range m.circuits.Snapshot() {
			name := serviceOf(st.Key)
			h, ok := services[name]
			if !ok {
				h = ServiceHealth{Service: name}
			}
			h.Endpoints++
			switch st.State {
			case circuit.StateOpen:
				h.OpenCircuits++
			case circuit.StateHalfOpen:
				h.HalfOpenCircuits++
			}
			services[name] = h
		}
	}

	report := &Report{SystemStatus: StatusHealthy, Services: services}
	for name, h := range services {
		h.Status = m.evaluate(h)
		services[name] = h
		report.SystemStatus = worst(report.SystemStatus, h.Status)
	}

	m.lastCheck = now
	m.lastReport = report
	return report
}

func (m *Monitor) evaluate(h ServiceHealth) SystemStatus {
	rated := h.Calls >= m.thresholds.MinCalls
	switch {
	case h.Endpoints > 0 && h.OpenCircuits == h.Endpoints:
		return StatusCritical
	case rated && h.ErrorRate >= m.thresholds.CriticalErrorRate:
		return StatusCritical
	case h.OpenCircuits > 0 || h.HalfOpenCircuits > 0:
		return StatusDegraded
	case rated && h.ErrorRate >= m.thresholds.DegradedErrorRate:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// serviceOf extracts the service from a policy key of the form
// service[:group][/method].
func serviceOf(key string) string {
	svc, _, _ := strings.Cut(key, "/")
	svc, _, _ = strings.Cut(svc, ":")
	return svc
}
