package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/livecluster/internal/circuit"
	"github.com/vietddude/livecluster/internal/core/domain"
	"github.com/vietddude/livecluster/internal/errcause"
	"github.com/vietddude/livecluster/internal/infra/metrics"
	"github.com/vietddude/livecluster/internal/policy"
)

// call is the per-invocation state.
type call struct {
	req     *domain.Request
	set     *policy.Set
	key     string
	sticky  string
	breaker *circuit.Breaker
}

// Invoke runs req through admission, routing, invocation and the failure
// policy. It returns a real response, a degraded or empty response, or a
// typed error from the domain package.
func (c *LiveCluster) Invoke(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cl := &call{
		req: req,
		set: c.policies.Policies(req.Service, req.Method),
		key: req.Key(),
	}
	if cl.set.Circuit != nil {
		cl.breaker = c.circuits.Breaker(cl.key, cl.set.Circuit)
	}

	release, err := c.admission.Admit(ctx, cl.key, cl.set)
	if err != nil {
		c.log.Debug("Call rejected by admission", "request", req.ID, "key", cl.key, "error", err)
		c.finish(req, OutcomeRejected, err)
		return nil, err
	}
	defer release()

	cl.sticky = c.stickyEndpoint(ctx, cl)

	resp, err := c.run(ctx, cl)
	switch {
	case err != nil:
		c.finish(req, OutcomeFailed, err)
	case resp.Degraded:
		c.finish(req, OutcomeDegraded, nil)
	case resp.Empty:
		c.finish(req, OutcomeFailsafe, nil)
	default:
		c.finish(req, OutcomeSuccess, nil)
	}
	return resp, err
}

func (c *LiveCluster) run(ctx context.Context, cl *call) (*domain.Response, error) {
	cluster := cl.set.Cluster
	maxAttempts := cluster.MaxAttempts()

	var lastErr error
	for attempt := 1; ; attempt++ {
		// ROUTING
		if err := checkDeadline(ctx, "routing"); err != nil {
			return c.settle(cl, err, nil, "")
		}
		endpoint, err := c.pick(ctx, cl)
		if err != nil {
			if lastErr != nil && errors.Is(err, domain.ErrNoEndpoint) {
				// Every endpoint was tried before the budget ran out.
				err = &domain.RetryExhaustedError{Attempts: attempt - 1, LastCause: lastErr}
			}
			return c.settle(cl, err, nil, "")
		}

		// INVOKING
		if err := checkDeadline(ctx, "invoking"); err != nil {
			return c.settle(cl, err, nil, "")
		}
		resp, err := c.attempt(ctx, cl, endpoint, attempt)
		if err == nil {
			c.rememberSticky(ctx, cl, endpoint)
			return resp, nil
		}

		// CLASSIFYING
		cause := errcause.Classify(err)
		c.recordCircuitFailure(cl, endpoint, err, cause)

		if cluster.Invoker != policy.InvokerFailover || cl.set.Degrade(err, cause) != nil {
			return c.settle(cl, err, cause, endpoint.ID())
		}

		lastErr = err
		if !c.retryable(cl, err, cause) {
			c.log.Debug("Error not retryable", "request", cl.req.ID, "key", cl.key, "endpoint", endpoint.ID(), "error", err)
			return nil, err
		}
		if attempt >= maxAttempts {
			c.log.Warn("Retry budget exhausted",
				"request", cl.req.ID, "key", cl.key, "attempts", attempt, "error", err)
			return nil, &domain.RetryExhaustedError{Attempts: attempt, LastCause: err}
		}
		if endpoint.ID() == cl.sticky {
			cl.sticky = ""
		}

		// RETRY_WAIT
		if err := checkDeadline(ctx, "waiting to retry"); err != nil {
			return c.settle(cl, withLastCause(err, lastErr), nil, endpoint.ID())
		}
		c.log.Debug("Retrying call",
			"request", cl.req.ID, "key", cl.key, "attempt", attempt, "endpoint", endpoint.ID(), "error", err)
		if err := c.sleep(ctx, cluster.Retry.Interval); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = &domain.TimeoutError{Stage: "waiting to retry", Err: err}
			}
			return c.settle(cl, withLastCause(err, lastErr), nil, endpoint.ID())
		}
	}
}

// withLastCause attaches the last attempt failure to a retry-wait timeout.
func withLastCause(err, last error) error {
	var timeout *domain.TimeoutError
	if errors.As(err, &timeout) && timeout.LastCause == nil {
		timeout.LastCause = last
	}
	return err
}

// settle resolves a terminal failure: a matching degrade config wins, then
// the failsafe invoker swallows the error, otherwise it propagates.
func (c *LiveCluster) settle(cl *call, err error, cause *errcause.Cause, endpoint string) (*domain.Response, error) {
	if cause == nil {
		cause = errcause.Classify(err)
	}
	if d := cl.set.Degrade(err, cause); d != nil {
		resp, derr := degradeResponse(d, endpoint)
		if derr == nil {
			metrics.DegradedTotal.WithLabelValues(cl.req.Service, cl.req.Method).Inc()
			c.log.Info("Call degraded", "request", cl.req.ID, "key", cl.key, "error", err)
			return resp, nil
		}
		c.log.Error("Degrade failed", "key", cl.key, "error", derr)
	}

	if cl.set.Cluster.Invoker == policy.InvokerFailsafe {
		c.log.Debug("Failsafe swallowed error", "request", cl.req.ID, "key", cl.key, "error", err)
		return &domain.Response{Endpoint: endpoint, Empty: true}, nil
	}
	return nil, err
}

// pick routes the request and selects one endpoint, honoring attempted
// exclusion, open circuits and the sticky preference.
func (c *LiveCluster) pick(ctx context.Context, cl *call) (domain.Endpoint, error) {
	endpoints, err := c.router.Route(ctx, cl.req)
	if err != nil {
		return nil, fmt.Errorf("failed to route %s: %w", cl.key, err)
	}

	candidates := make([]domain.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if !cl.req.Attempted(ep.ID()) {
			candidates = append(candidates, ep)
		}
	}
	if len(candidates) == 0 {
		return nil, &domain.NoEndpointAvailableError{Key: cl.key, Attempted: len(cl.req.AttemptedIDs())}
	}

	if cl.breaker != nil {
		allowed := make([]domain.Endpoint, 0, len(candidates))
		var blocked []string
		for _, ep := range candidates {
			if cl.breaker.Allow(ep.ID()) {
				allowed = append(allowed, ep)
			} else {
				blocked = append(blocked, ep.ID())
			}
		}
		if len(allowed) == 0 {
			return nil, &domain.CircuitOpenError{Key: cl.key, Endpoints: blocked}
		}
		candidates = allowed
	}

	if cl.sticky != "" {
		for _, ep := range candidates {
			if ep.ID() == cl.sticky {
				return ep, nil
			}
		}
	}
	return c.selector.Select(cl.req.CallClass(), candidates), nil
}

func (c *LiveCluster) attempt(ctx context.Context, cl *call, endpoint domain.Endpoint, n int) (*domain.Response, error) {
	cl.req.MarkAttempted(endpoint.ID())

	start := time.Now()
	resp, err := c.transport.Invoke(ctx, cl.req, endpoint)
	latency := time.Since(start)

	metrics.InvokeLatency.WithLabelValues(cl.req.Service, endpoint.ID()).Observe(latency.Seconds())
	for _, o := range c.observers {
		o.AttemptFinished(cl.req, endpoint, latency, err)
	}

	if err != nil {
		metrics.AttemptsTotal.WithLabelValues(cl.req.Service, endpoint.ID(), "failure").Inc()
		return nil, err
	}
	metrics.AttemptsTotal.WithLabelValues(cl.req.Service, endpoint.ID(), "success").Inc()
	if cl.breaker != nil {
		cl.breaker.RecordSuccess(endpoint.ID(), latency)
	}
	if resp == nil {
		resp = &domain.Response{}
	}
	if resp.Endpoint == "" {
		resp.Endpoint = endpoint.ID()
	}
	if n > 1 {
		c.log.Debug("Call succeeded after retry", "request", cl.req.ID, "key", cl.key, "attempt", n, "endpoint", endpoint.ID())
	}
	return resp, nil
}

// retryable reports whether a failover call may try again after err.
func (c *LiveCluster) retryable(cl *call, err error, cause *errcause.Cause) bool {
	retry := cl.set.Cluster.Retry
	if retry == nil || !retry.AllowsMethod(cl.req.Method) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return retry.Match(err, cause) || errcause.IsTransport(err)
}

func (c *LiveCluster) recordCircuitFailure(cl *call, endpoint domain.Endpoint, err error, cause *errcause.Cause) {
	if cl.breaker == nil || errors.Is(err, context.Canceled) {
		return
	}
	p := cl.breaker.Policy()
	if errcause.IsTransport(err) || (!p.Empty() && p.Match(err, cause)) {
		cl.breaker.RecordFailure(endpoint.ID())
	}
}

func (c *LiveCluster) stickyEndpoint(ctx context.Context, cl *call) string {
	if cl.req.StickyID != "" || c.sticky == nil {
		return cl.req.StickyID
	}
	id, err := c.sticky.Get(ctx, cl.req.CallClass())
	if err != nil {
		c.log.Warn("Failed to read sticky endpoint", "class", cl.req.CallClass(), "error", err)
		return ""
	}
	return id
}

// rememberSticky stores the endpoint on every success so a persistent store
// keeps the binding alive while it is in use.
func (c *LiveCluster) rememberSticky(ctx context.Context, cl *call, endpoint domain.Endpoint) {
	cl.req.StickyID = endpoint.ID()
	if c.sticky == nil {
		return
	}
	if err := c.sticky.Put(ctx, cl.req.CallClass(), endpoint.ID()); err != nil {
		c.log.Warn("Failed to store sticky endpoint", "class", cl.req.CallClass(), "error", err)
	}
}

func (c *LiveCluster) finish(req *domain.Request, outcome Outcome, err error) {
	metrics.InvocationsTotal.WithLabelValues(req.Service, req.Method, string(outcome)).Inc()
	for _, o := range c.observers {
		o.CallFinished(req, outcome, err)
	}
}

// checkDeadline fails with a TimeoutError once ctx has expired.
func checkDeadline(ctx context.Context, stage string) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.TimeoutError{Stage: stage, Err: err}
	default:
		return err
	}
}
