package transport

import (
	"context"
	"sync"

	"github.com/vietddude/livecluster/internal/core/domain"
)

// Invoker performs one call against one endpoint.
type Invoker interface {
	Invoke(ctx context.Context, req *domain.Request, ep domain.Endpoint) (*domain.Response, error)
}

// Mux dispatches each call to the transport bound to its service and falls
// back to a default for unbound services.
type Mux struct {
	mu       sync.RWMutex
	fallback Invoker
	services map[string]Invoker
}

// NewMux creates a mux that sends unbound services to fallback.
func NewMux(fallback Invoker) *Mux {
	return &Mux{fallback: fallback, services: make(map[string]Invoker)}
}

// Bind routes calls to service through t.
func (m *Mux) Bind(service string, t Invoker) {
	m.mu.Lock()
	m.services[service] = t
	m.mu.Unlock()
}

// Invoke implements cluster.Transport.
func (m *Mux) Invoke(ctx context.Context, req *domain.Request, ep domain.Endpoint) (*domain.Response, error) {
	m.mu.RLock()
	t, ok := m.services[req.Service]
	m.mu.RUnlock()
	if !ok {
		t = m.fallback
	}
	return t.Invoke(ctx, req, ep)
}
