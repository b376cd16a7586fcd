package circuit

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/vietddude/livecluster/internal/infra/metrics"
	"github.com/vietddude/livecluster/internal/policy"
	"github.com/vietddude/livecluster/internal/recovery"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testPolicy() *policy.CircuitBreakPolicy {
	return &policy.CircuitBreakPolicy{
		FailureThreshold: 3,
		OpenDuration:     10 * time.Second,
		Recover: recovery.RecoverRatio{
			Duration: 10 * time.Second,
			Phase:    10,
			Weight:   100,
		},
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newBreaker("svc/m", testPolicy(), clock.now, func() float64 { return 0 })

	b.RecordFailure("a")
	b.RecordFailure("a")
	if !b.Allow("a") {
		t.Fatal("circuit opened before threshold")
	}
	b.RecordFailure("a")
	if b.Allow("a") {
		t.Fatal("circuit should be open after 3 consecutive failures")
	}
	if b.State("a") != StateOpen {
		t.Errorf("state = %s, want open", b.State("a"))
	}
	if !b.Allow("b") {
		t.Error("unrelated endpoint blocked")
	}
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newBreaker("svc/m", testPolicy(), clock.now, func() float64 { return 0 })

	b.RecordFailure("a")
	b.RecordFailure("a")
	b.RecordSuccess("a", time.Millisecond)
	b.RecordFailure("a")
	b.RecordFailure("a")
	if b.State("a") != StateClosed {
		t.Error("success should reset the failure streak")
	}
}

func TestBreaker_HalfOpenRamp(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	draw := 0.5
	b := newBreaker("svc/m", testPolicy(), clock.now, func() float64 { return draw })

	for i := 0; i < 3; i++ {
		b.RecordFailure("a")
	}
	clock.advance(10 * time.Second)

	// Ramp just started: 10% of traffic.
	if b.Allow("a") {
		t.Fatal("draw 0.5 should be shed at ratio 0.1")
	}
	draw = 0.05
	if !b.Allow("a") {
		t.Fatal("draw 0.05 should pass at ratio 0.1")
	}
	if b.State("a") != StateHalfOpen {
		t.Errorf("state = %s, want half-open", b.State("a"))
	}

	// Halfway through the ramp: 60%.
	clock.advance(5 * time.Second)
	draw = 0.5
	if !b.Allow("a") {
		t.Fatal("draw 0.5 should pass at ratio 0.6")
	}

	clock.advance(5 * time.Second)
	draw = 0.99
	if !b.Allow("a") {
		t.Fatal("completed ramp should close the circuit")
	}
	if b.State("a") != StateClosed {
		t.Errorf("state = %s, want closed", b.State("a"))
	}
}

func TestBreaker_FailureWhileHalfOpenReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newBreaker("svc/m", testPolicy(), clock.now, func() float64 { return 0 })

	for i := 0; i < 3; i++ {
		b.RecordFailure("a")
	}
	clock.advance(11 * time.Second)
	if b.State("a") != StateHalfOpen {
		t.Fatalf("state = %s, want half-open", b.State("a"))
	}

	b.RecordFailure("a")
	if b.State("a") != StateOpen {
		t.Fatalf("state = %s, want open", b.State("a"))
	}
	clock.advance(9 * time.Second)
	if b.Allow("a") {
		t.Error("reopened circuit should block for a full open duration")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	p := testPolicy()

	b := r.Breaker("svc/m", p)
	if r.Breaker("svc/m", p) != b {
		t.Error("breaker not reused")
	}
	if r.Breaker("svc/m", testPolicy()) == b {
		t.Error("breaker not rebuilt for a new policy")
	}

	r.Breaker("a/x", p).RecordSuccess("e2", 2*time.Millisecond)
	r.Breaker("a/x", p).RecordSuccess("e1", 4*time.Millisecond)
	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].Endpoint != "e1" || snap[1].Endpoint != "e2" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap[0].AvgLatency != 4*time.Millisecond {
		t.Errorf("avg latency = %s", snap[0].AvgLatency)
	}
}

func circuitGauge(t *testing.T, key, endpoint string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.CircuitState.WithLabelValues(key, endpoint).Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetGauge().GetValue()
}

func TestBreaker_StateGaugeSeparatesKeys(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	orders := newBreaker("orders/Get", testPolicy(), clock.now, func() float64 { return 0 })
	users := newBreaker("users/Get", testPolicy(), clock.now, func() float64 { return 0 })

	for i := 0; i < 3; i++ {
		orders.RecordFailure("shared")
	}
	users.RecordSuccess("shared", time.Millisecond)
	users.RecordFailure("shared")

	if got := circuitGauge(t, "orders/Get", "shared"); got != float64(StateOpen) {
		t.Errorf("orders gauge = %v, want open", got)
	}
	if got := circuitGauge(t, "users/Get", "shared"); got != float64(StateClosed) {
		t.Errorf("users gauge = %v, want closed", got)
	}
}
