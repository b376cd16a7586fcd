package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/livecluster/internal/core/domain"
	"github.com/vietddude/livecluster/internal/policy"
)

func TestConcurrencyGate_RejectsWithoutWait(t *testing.T) {
	g := NewConcurrencyGate("svc/m", 1, 0)

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err = g.Acquire(context.Background())
	var rej *domain.RejectedError
	if !errors.As(err, &rej) || rej.Gate != GateConcurrency {
		t.Fatalf("expected concurrency rejection, got %v", err)
	}
	if !errors.Is(err, domain.ErrRejected) {
		t.Error("rejection should match ErrRejected")
	}

	release()
	release()
	if g.InFlight() != 0 {
		t.Errorf("in flight = %d after double release", g.InFlight())
	}

	release, err = g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release()
}

func TestConcurrencyGate_WaitsForSlot(t *testing.T) {
	g := NewConcurrencyGate("svc/m", 1, time.Second)
	release, _ := g.Acquire(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	start := time.Now()
	second, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("waiting acquire failed: %v", err)
	}
	defer second()
	if time.Since(start) < 10*time.Millisecond {
		t.Error("acquire should have waited for the slot")
	}
}

func TestConcurrencyGate_WaitBounded(t *testing.T) {
	g := NewConcurrencyGate("svc/m", 1, 20*time.Millisecond)
	release, _ := g.Acquire(context.Background())
	defer release()

	_, err := g.Acquire(context.Background())
	if !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected rejection after max wait, got %v", err)
	}
}

func TestConcurrencyGate_CallerDeadline(t *testing.T) {
	g := NewConcurrencyGate("svc/m", 1, time.Second)
	release, _ := g.Acquire(context.Background())
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Acquire(ctx)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestRateGate_EvenlySpacedPermits(t *testing.T) {
	const threshold = 4
	window := &policy.SlidingWindow{Threshold: threshold, Window: time.Second}
	g := NewRateGate(window.PermitIntervalMicros())

	base := int64(5_000_000)
	step := window.Window.Microseconds() / threshold
	for i := int64(0); i < threshold; i++ {
		if !g.TryAcquire(base + i*step) {
			t.Fatalf("permit %d spread across the window was refused", i)
		}
	}
	if g.TryAcquire(base + window.Window.Microseconds() - 1) {
		t.Fatal("permit beyond threshold within the window was granted")
	}
}

func TestRateGate_NotBursty(t *testing.T) {
	g := NewRateGate(100_000)
	if !g.TryAcquire(1_000_000) {
		t.Fatal("first permit refused")
	}
	if g.TryAcquire(1_000_001) {
		t.Fatal("back-to-back permit granted")
	}
}

func TestRateGate_IdleReset(t *testing.T) {
	g := NewRateGate(100_000)
	g.TryAcquire(0)

	// A long idle period must not bank permits for a burst.
	now := int64(10_000_000)
	if !g.TryAcquire(now) {
		t.Fatal("permit after idle refused")
	}
	if g.TryAcquire(now + 1) {
		t.Fatal("idle period allowed a burst")
	}
	if !g.TryAcquire(now + 100_000) {
		t.Fatal("next scheduled permit refused")
	}
}

func TestLoadGate(t *testing.T) {
	p := &policy.LoadLimitPolicy{Throttles: []policy.LoadLimitThrottle{
		{CPU: ptr(90), Ratio: 100},
		{CPU: ptr(70), Ratio: 30},
	}}
	g := NewLoadGate(p)

	tests := []struct {
		name string
		cpu  float64
		draw int
		want bool
	}{
		{"idle host", 10, 0, true},
		{"shed when draw below ratio", 75, 29, false},
		{"pass when draw at ratio", 75, 30, true},
		{"full shed", 95, 99, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g.draw = func(int) int { return tt.draw }
			if got := g.Admit(domain.LoadMetric{CPUUsage: tt.cpu}); got != tt.want {
				t.Errorf("Admit = %v, want %v", got, tt.want)
			}
		})
	}
}

type fixedMetrics struct{ m domain.LoadMetric }

func (f fixedMetrics) Current() domain.LoadMetric { return f.m }

func TestRegistry_RateRejectionReleasesSlot(t *testing.T) {
	r := NewRegistry(nil)
	now := time.Unix(100, 0)
	r.now = func() time.Time { return now }

	set := &policy.Set{
		Concurrency: &policy.ConcurrencyLimitPolicy{MaxConcurrency: 1},
		Rate:        &policy.SlidingWindow{Threshold: 1, Window: time.Second},
	}
	if err := set.Compile(); err != nil {
		t.Fatal(err)
	}

	release, err := r.Admit(context.Background(), "svc/m", set)
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}
	release()

	_, err = r.Admit(context.Background(), "svc/m", set)
	var rej *domain.RejectedError
	if !errors.As(err, &rej) || rej.Gate != GateRate {
		t.Fatalf("expected rate rejection, got %v", err)
	}
	if got := r.concurrencyGate("svc/m", set.Concurrency).InFlight(); got != 0 {
		t.Errorf("rate rejection leaked a concurrency slot: %d in flight", got)
	}

	now = now.Add(time.Second)
	release, err = r.Admit(context.Background(), "svc/m", set)
	if err != nil {
		t.Fatalf("admit after window: %v", err)
	}
	release()
}

func TestRegistry_LoadShedding(t *testing.T) {
	r := NewRegistry(fixedMetrics{domain.LoadMetric{CPUUsage: 99}})
	set := &policy.Set{Load: &policy.LoadLimitPolicy{
		Throttles: []policy.LoadLimitThrottle{{CPU: ptr(90), Ratio: 100}},
	}}
	if err := set.Compile(); err != nil {
		t.Fatal(err)
	}

	_, err := r.Admit(context.Background(), "svc/m", set)
	var rej *domain.RejectedError
	if !errors.As(err, &rej) || rej.Gate != GateLoad {
		t.Fatalf("expected load rejection, got %v", err)
	}
}

func TestRegistry_GatesFollowPolicyInstance(t *testing.T) {
	r := NewRegistry(nil)
	p1 := &policy.ConcurrencyLimitPolicy{MaxConcurrency: 1}
	p2 := &policy.ConcurrencyLimitPolicy{MaxConcurrency: 5}

	g1 := r.concurrencyGate("k", p1)
	if r.concurrencyGate("k", p1) != g1 {
		t.Error("gate not reused for the same policy")
	}
	g2 := r.concurrencyGate("k", p2)
	if g2 == g1 || g2.Limit() != 5 {
		t.Error("gate not rebuilt after policy change")
	}
	if r.concurrencyGate("other", p1) == g1 {
		t.Error("keys must not share gates")
	}
}

func ptr(v float64) *float64 { return &v }
