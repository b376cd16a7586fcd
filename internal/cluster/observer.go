package cluster

import (
	"time"

	"github.com/vietddude/livecluster/internal/core/domain"
)

// Outcome is the final result class of a logical call.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailsafe Outcome = "failsafe"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Observer is notified of attempts and call completions. Implementations
// must be safe for concurrent use and must not block.
type Observer interface {
	AttemptFinished(req *domain.Request, endpoint domain.Endpoint, latency time.Duration, err error)
	CallFinished(req *domain.Request, outcome Outcome, err error)
}
