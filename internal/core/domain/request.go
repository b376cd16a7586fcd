package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Request is an outgoing call as seen by the invocation engine.
// It is owned by the calling transport plugin; the engine only reads it and
// annotates the attempted endpoint set and the sticky id.
type Request struct {
	ID      string
	Service string
	Group   string
	Method  string
	Args    []any
	Body    []byte
	Headers map[string]string

	// Timeout bounds the whole logical call, retries included. Zero means the
	// caller's context deadline (if any) is the only bound.
	Timeout time.Duration

	// StickyID is the preferred endpoint id for this call.
	StickyID string

	mu        sync.Mutex
	attempted map[string]struct{}
	order     []string
}

// NewRequest creates a request with a fresh id.
func NewRequest(service, method string, args ...any) *Request {
	return &Request{
		ID:      uuid.NewString(),
		Service: service,
		Method:  method,
		Args:    args,
	}
}

// Key returns the policy lookup key: service[:group]/method.
func (r *Request) Key() string {
	return r.CallClass() + "/" + r.Method
}

// CallClass groups calls that share a sticky endpoint.
func (r *Request) CallClass() string {
	if r.Group == "" {
		return r.Service
	}
	return r.Service + ":" + r.Group
}

// MarkAttempted records that endpointID has been tried for this call.
func (r *Request) MarkAttempted(endpointID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.attempted == nil {
		r.attempted = make(map[string]struct{})
	}
	if _, ok := r.attempted[endpointID]; ok {
		return
	}
	r.attempted[endpointID] = struct{}{}
	r.order = append(r.order, endpointID)
}

// Attempted reports whether endpointID has already been tried.
func (r *Request) Attempted(endpointID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.attempted[endpointID]
	return ok
}

// AttemptedIDs returns attempted endpoint ids in the order they were tried.
func (r *Request) AttemptedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
