// Package cluster implements the live cluster: the per-call orchestrator that
// gates, routes, invokes, classifies and then retries, degrades or fails a
// call according to its policy set.
//
// A logical call moves through these states:
//
//	ROUTING -> INVOKING -> SUCCESS
//	                    -> CLASSIFYING -> RETRY_WAIT -> ROUTING
//	                                   -> DEGRADED
//	                                   -> FAILED
//
// The context deadline is checked on entry to ROUTING, INVOKING and
// RETRY_WAIT. Attempts of one call are strictly sequential.
package cluster

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/livecluster/internal/admission"
	"github.com/vietddude/livecluster/internal/circuit"
	"github.com/vietddude/livecluster/internal/core/domain"
	"github.com/vietddude/livecluster/internal/policy"
)

// Router returns every currently viable endpoint for a request.
type Router interface {
	Route(ctx context.Context, req *domain.Request) ([]domain.Endpoint, error)
}

// Transport performs one call against one endpoint. Application level
// failures are returned as *domain.ServiceError.
type Transport interface {
	Invoke(ctx context.Context, req *domain.Request, endpoint domain.Endpoint) (*domain.Response, error)
}

// LiveCluster orchestrates calls. It is safe for concurrent use.
type LiveCluster struct {
	router    Router
	transport Transport
	policies  policy.Source

	admission *admission.Registry
	circuits  *circuit.Registry
	sticky    StickyStore
	selector  *Selector
	observers []Observer
	log       *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a LiveCluster.
type Option func(*LiveCluster)

// WithAdmission sets the admission gate registry.
func WithAdmission(r *admission.Registry) Option {
	return func(c *LiveCluster) { c.admission = r }
}

// WithCircuits sets the circuit breaker registry.
func WithCircuits(r *circuit.Registry) Option {
	return func(c *LiveCluster) { c.circuits = r }
}

// WithStickyStore enables sticky sessions backed by s.
func WithStickyStore(s StickyStore) Option {
	return func(c *LiveCluster) { c.sticky = s }
}

// WithSelector replaces the default round-robin selector.
func WithSelector(s *Selector) Option {
	return func(c *LiveCluster) { c.selector = s }
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(c *LiveCluster) { c.observers = append(c.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *LiveCluster) { c.log = l }
}

// New creates a live cluster. Admission and circuit registries are created
// when not supplied; sticky sessions are disabled unless a store is given.
func New(router Router, transport Transport, policies policy.Source, opts ...Option) *LiveCluster {
	c := &LiveCluster{
		router:    router,
		transport: transport,
		policies:  policies,
		selector:  NewSelector(SelectRoundRobin),
		log:       slog.Default(),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.admission == nil {
		c.admission = admission.NewRegistry(nil)
	}
	if c.circuits == nil {
		c.circuits = circuit.NewRegistry()
	}
	return c
}

// Circuits exposes the circuit registry for health reporting.
func (c *LiveCluster) Circuits() *circuit.Registry {
	return c.circuits
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
