package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/livecluster/internal/circuit"
	"github.com/vietddude/livecluster/internal/cluster"
	"github.com/vietddude/livecluster/internal/core/domain"
)

type stubCircuits struct {
	stats []circuit.Stats
}

func (s *stubCircuits) Snapshot() []circuit.Stats { return s.stats }

func record(m *Monitor, service string, outcome cluster.Outcome, n int) {
	req := &domain.Request{Service: service, Method: "get"}
	for i := 0; i < n; i++ {
		m.CallFinished(req, outcome, nil)
	}
}

func TestMonitor_Status(t *testing.T) {
	tests := []struct {
		name     string
		success  int
		failed   int
		circuits []circuit.Stats
		want     SystemStatus
	}{
		{name: "healthy", success: 20},
		{name: "few calls are not rated", failed: 3, want: StatusHealthy},
		{name: "error rate degraded", success: 17, failed: 3, want: StatusDegraded},
		{name: "error rate critical", success: 5, failed: 15, want: StatusCritical},
		{
			name:    "half-open circuit degrades",
			success: 20,
			circuits: []circuit.Stats{
				{Key: "orders/get", Endpoint: "a", State: circuit.StateHalfOpen},
				{Key: "orders/get", Endpoint: "b", State: circuit.StateClosed},
			},
			want: StatusDegraded,
		},
		{
			name:    "all circuits open is critical",
			success: 20,
			circuits: []circuit.Stats{
				{Key: "orders:eu/get", Endpoint: "a", State: circuit.StateOpen},
			},
			want: StatusCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := tt.want
			if want == "" {
				want = StatusHealthy
			}
			m := NewMonitor(&stubCircuits{stats: tt.circuits}, DefaultThresholds, 0)
			record(m, "orders", cluster.OutcomeSuccess, tt.success)
			record(m, "orders", cluster.OutcomeFailed, tt.failed)

			report := m.CheckHealth(context.Background())
			if got := report.Services["orders"].Status; got != want {
				t.Errorf("status = %s, want %s", got, want)
			}
			if report.SystemStatus != want {
				t.Errorf("system status = %s, want %s", report.SystemStatus, want)
			}
		})
	}
}

func TestMonitor_CachesReport(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewMonitor(nil, DefaultThresholds, 10*time.Second)
	m.now = func() time.Time { return now }

	record(m, "orders", cluster.OutcomeSuccess, 1)
	first := m.CheckHealth(context.Background())

	record(m, "orders", cluster.OutcomeSuccess, 1)
	if got := m.CheckHealth(context.Background()); got != first {
		t.Error("expected cached report")
	}

	now = now.Add(11 * time.Second)
	if got := m.CheckHealth(context.Background()).Services["orders"].Calls; got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestServer_Health(t *testing.T) {
	circuits := &stubCircuits{stats: []circuit.Stats{{Key: "orders/get", Endpoint: "a", State: circuit.StateOpen}}}
	srv := NewServer(NewMonitor(circuits, DefaultThresholds, 0), ":0")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Services["orders"].OpenCircuits != 1 {
		t.Errorf("report = %+v", report)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("metrics code = %d", rec.Code)
	}
}
