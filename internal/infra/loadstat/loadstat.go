// Package loadstat samples host CPU usage and load average from procfs for
// the load admission gate.
package loadstat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"github.com/vietddude/livecluster/internal/core/domain"
)

// Sampler periodically reads /proc and keeps the latest metric.
type Sampler struct {
	fs procfs.FS

	mu      sync.RWMutex
	prev    *procfs.CPUStat
	current domain.LoadMetric
}

// NewSampler opens the proc filesystem at mountPoint (procfs.DefaultMountPoint
// when empty).
func NewSampler(mountPoint string) (*Sampler, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}
	return &Sampler{fs: fs}, nil
}

// Current implements admission.MetricSource.
func (s *Sampler) Current() domain.LoadMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Sample reads the CPU counters and load average once. CPU usage is the
// busy share since the previous sample, so the first sample reports 0.
func (s *Sampler) Sample() error {
	stat, err := s.fs.Stat()
	if err != nil {
		return fmt.Errorf("failed to read cpu stat: %w", err)
	}
	load, err := s.fs.LoadAvg()
	if err != nil {
		return fmt.Errorf("failed to read load average: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cpu := stat.CPUTotal
	if s.prev != nil {
		s.current.CPUUsage = cpuUsage(*s.prev, cpu)
	}
	s.prev = &cpu
	s.current.LoadUsage = load.Load1
	return nil
}

// Run samples every interval until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) {
	if err := s.Sample(); err != nil {
		slog.Warn("Load sample failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sample(); err != nil {
				slog.Warn("Load sample failed", "error", err)
			}
		}
	}
}

// cpuUsage returns the busy percentage between two counter snapshots.
func cpuUsage(prev, cur procfs.CPUStat) float64 {
	busy := func(c procfs.CPUStat) float64 {
		return c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	}
	idle := func(c procfs.CPUStat) float64 {
		return c.Idle + c.Iowait
	}

	busyDelta := busy(cur) - busy(prev)
	totalDelta := busyDelta + idle(cur) - idle(prev)
	if totalDelta <= 0 {
		return 0
	}
	return busyDelta / totalDelta * 100
}
