// Package admission implements the gates consulted before a call is
// attempted: in-flight concurrency, sliding-window rate and load shedding.
package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/livecluster/internal/core/domain"
	"golang.org/x/sync/semaphore"
)

// Gate names used in rejections and metrics.
const (
	GateConcurrency = "concurrency"
	GateRate        = "rate"
	GateLoad        = "load"
)

// ConcurrencyGate bounds in-flight calls. Callers that find no free slot
// wait up to maxWait and are then rejected.
type ConcurrencyGate struct {
	key      string
	limit    int64
	maxWait  time.Duration
	sem      *semaphore.Weighted
	inflight atomic.Int64
}

// NewConcurrencyGate creates a gate allowing limit concurrent calls.
func NewConcurrencyGate(key string, limit int, maxWait time.Duration) *ConcurrencyGate {
	return &ConcurrencyGate{
		key:     key,
		limit:   int64(limit),
		maxWait: maxWait,
		sem:     semaphore.NewWeighted(int64(limit)),
	}
}

// Acquire takes a slot. The returned release func must be deferred by the
// caller; calling it more than once is harmless.
func (g *ConcurrencyGate) Acquire(ctx context.Context) (func(), error) {
	if !g.sem.TryAcquire(1) {
		if g.maxWait <= 0 {
			return nil, g.reject("no free slot")
		}
		waitCtx, cancel := context.WithTimeout(ctx, g.maxWait)
		err := g.sem.Acquire(waitCtx, 1)
		cancel()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				if errors.Is(ctxErr, context.DeadlineExceeded) {
					return nil, &domain.TimeoutError{Stage: "admission", Err: ctxErr}
				}
				return nil, ctxErr
			}
			return nil, g.reject("wait exceeded " + g.maxWait.String())
		}
	}

	g.inflight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			g.inflight.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

// InFlight returns the number of held slots.
func (g *ConcurrencyGate) InFlight() int64 {
	return g.inflight.Load()
}

// Limit returns the configured maximum.
func (g *ConcurrencyGate) Limit() int64 {
	return g.limit
}

func (g *ConcurrencyGate) reject(reason string) error {
	return &domain.RejectedError{Gate: GateConcurrency, Key: g.key, Reason: reason}
}
