package policy

import (
	"errors"
	"fmt"
)

// InvokerType selects how a failed attempt is handled.
type InvokerType string

const (
	// InvokerFailover retries on another endpoint.
	InvokerFailover InvokerType = "failover"
	// InvokerFailfast propagates the first failure.
	InvokerFailfast InvokerType = "failfast"
	// InvokerFailsafe swallows failures and returns an empty response.
	InvokerFailsafe InvokerType = "failsafe"
)

// ClusterPolicy chooses the invoker strategy for a call.
type ClusterPolicy struct {
	Invoker InvokerType  `yaml:"invoker" mapstructure:"invoker"`
	Retry   *RetryPolicy `yaml:"retry"   mapstructure:"retry"`
}

// Validate enforces that failover carries a retry policy.
func (p *ClusterPolicy) Validate() error {
	switch p.Invoker {
	case InvokerFailover:
		if p.Retry == nil {
			return errors.New("failover invoker requires a retry policy")
		}
		return p.Retry.Validate()
	case InvokerFailfast, InvokerFailsafe:
		return nil
	default:
		return fmt.Errorf("unknown invoker type %q", p.Invoker)
	}
}

// MaxAttempts is the number of tries the invoker allows.
func (p *ClusterPolicy) MaxAttempts() int {
	if p == nil || p.Invoker != InvokerFailover {
		return 1
	}
	return p.Retry.Attempts()
}
