// Package routing provides a static, config-driven endpoint router.
package routing

import (
	"context"
	"fmt"
	"sync"

	"github.com/vietddude/livecluster/internal/core/domain"
)

// GroupKey is the instance metadata key matched against Request.Group.
const GroupKey = "group"

// StaticRouter serves a fixed endpoint list per service. Endpoints can be
// replaced at runtime.
type StaticRouter struct {
	mu        sync.RWMutex
	endpoints map[string][]domain.Endpoint
}

// NewStaticRouter creates an empty router.
func NewStaticRouter() *StaticRouter {
	return &StaticRouter{endpoints: make(map[string][]domain.Endpoint)}
}

// AddEndpoint registers an endpoint for a service.
func (r *StaticRouter) AddEndpoint(service string, ep domain.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[service] = append(r.endpoints[service], ep)
}

// SetEndpoints replaces the endpoints of a service.
func (r *StaticRouter) SetEndpoints(service string, eps []domain.Endpoint) {
	cp := make([]domain.Endpoint, len(eps))
	copy(cp, eps)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[service] = cp
}

// Services returns the registered service names.
func (r *StaticRouter) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.endpoints))
	for s := range r.endpoints {
		out = append(out, s)
	}
	return out
}

// Endpoints returns all endpoints of a service.
func (r *StaticRouter) Endpoints(service string) []domain.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eps := r.endpoints[service]
	result := make([]domain.Endpoint, len(eps))
	copy(result, eps)
	return result
}

// Route implements cluster.Router. When the request names a group only
// instances whose metadata carries that group are returned.
func (r *StaticRouter) Route(_ context.Context, req *domain.Request) ([]domain.Endpoint, error) {
	r.mu.RLock()
	eps, ok := r.endpoints[req.Service]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown service %s", req.Service)
	}

	if req.Group == "" {
		result := make([]domain.Endpoint, len(eps))
		copy(result, eps)
		return result, nil
	}

	var result []domain.Endpoint
	for _, ep := range eps {
		if groupOf(ep) == req.Group {
			result = append(result, ep)
		}
	}
	return result, nil
}

func groupOf(ep domain.Endpoint) string {
	switch inst := ep.(type) {
	case *domain.Instance:
		return inst.Metadata[GroupKey]
	case domain.Instance:
		return inst.Metadata[GroupKey]
	}
	return ""
}
