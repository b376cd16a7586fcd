package policy

import (
	"errors"
	"time"

	"github.com/vietddude/livecluster/internal/recovery"
)

// CircuitBreakPolicy opens an endpoint's circuit after FailureThreshold
// consecutive counted failures. The embedded ErrorPolicy selects which
// application errors count; transport failures always count.
type CircuitBreakPolicy struct {
	ErrorPolicy `yaml:",inline" mapstructure:",squash"`

	FailureThreshold int                   `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	OpenDuration     time.Duration         `yaml:"open_duration"     mapstructure:"open_duration"`
	Recover          recovery.RecoverRatio `yaml:"recover"           mapstructure:"recover"`
}

// DefaultCircuitBreakPolicy trips after 5 failures and stays open for 30s.
func DefaultCircuitBreakPolicy() *CircuitBreakPolicy {
	return &CircuitBreakPolicy{
		FailureThreshold: 5,
		OpenDuration:     30 * time.Second,
		Recover:          recovery.DefaultRecoverRatio(),
	}
}

// Validate checks bounds and fills a missing ramp with the default.
func (p *CircuitBreakPolicy) Validate() error {
	if p.FailureThreshold <= 0 {
		return errors.New("circuit failure_threshold must be > 0")
	}
	if p.OpenDuration <= 0 {
		return errors.New("circuit open_duration must be > 0")
	}
	if p.Recover == (recovery.RecoverRatio{}) {
		p.Recover = recovery.DefaultRecoverRatio()
	}
	return p.ErrorPolicy.Compile()
}
