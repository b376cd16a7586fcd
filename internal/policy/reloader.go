package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Loader fetches a fresh table of uncompiled sets keyed by Key.
type Loader interface {
	Load(ctx context.Context) (map[string]*Set, error)
}

// Reloader refreshes a StaticSource from a Loader on a cron schedule.
type Reloader struct {
	cron    *cron.Cron
	source  *StaticSource
	loader  Loader
	timeout time.Duration
}

// NewReloader schedules reloads using a standard five-field cron spec.
func NewReloader(source *StaticSource, loader Loader, spec string) (*Reloader, error) {
	r := &Reloader{
		cron:    cron.New(),
		source:  source,
		loader:  loader,
		timeout: 30 * time.Second,
	}
	if _, err := r.cron.AddFunc(spec, r.run); err != nil {
		return nil, fmt.Errorf("invalid reload schedule %q: %w", spec, err)
	}
	return r, nil
}

// Reload loads and installs a new table immediately.
func (r *Reloader) Reload(ctx context.Context) error {
	sets, err := r.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	if err := r.source.Replace(sets); err != nil {
		return err
	}
	slog.Info("Policies reloaded", "sets", len(sets))
	return nil
}

// Start runs the schedule until ctx is cancelled.
func (r *Reloader) Start(ctx context.Context) {
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
}

func (r *Reloader) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.Reload(ctx); err != nil {
		slog.Warn("Policy reload failed, keeping current policies", "error", err)
	}
}
