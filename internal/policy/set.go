package policy

import (
	"fmt"

	"github.com/vietddude/livecluster/internal/errcause"
)

// Set is the full policy snapshot for one service or method. Nil members
// disable the corresponding feature.
type Set struct {
	Cluster     *ClusterPolicy          `yaml:"cluster"     mapstructure:"cluster"`
	Concurrency *ConcurrencyLimitPolicy `yaml:"concurrency" mapstructure:"concurrency"`
	Rate        *SlidingWindow          `yaml:"rate"        mapstructure:"rate"`
	Load        *LoadLimitPolicy        `yaml:"load"        mapstructure:"load"`
	Circuit     *CircuitBreakPolicy     `yaml:"circuit"     mapstructure:"circuit"`
	Degrades    []*DegradeConfig        `yaml:"degrades"    mapstructure:"degrades"`
}

// DefaultSet is failover with the default retry and circuit policies.
func DefaultSet() *Set {
	return &Set{
		Cluster: &ClusterPolicy{
			Invoker: InvokerFailover,
			Retry:   DefaultRetryPolicy(),
		},
		Circuit: DefaultCircuitBreakPolicy(),
	}
}

// Compile validates every member and runs the one-shot compile steps. A Set
// must be compiled before it is handed to the cluster.
func (s *Set) Compile() error {
	if s.Cluster == nil {
		s.Cluster = &ClusterPolicy{Invoker: InvokerFailfast}
	}
	if s.Cluster.Invoker == "" {
		s.Cluster.Invoker = InvokerFailover
		if s.Cluster.Retry == nil {
			s.Cluster.Retry = DefaultRetryPolicy()
		}
	}
	if err := s.Cluster.Validate(); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	if s.Concurrency != nil {
		if err := s.Concurrency.Validate(); err != nil {
			return fmt.Errorf("concurrency: %w", err)
		}
	}
	if s.Rate != nil {
		if err := s.Rate.Validate(); err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		s.Rate.PermitIntervalMicros()
	}
	if s.Load != nil {
		s.Load.Cache()
	}
	if s.Circuit != nil {
		if err := s.Circuit.Validate(); err != nil {
			return fmt.Errorf("circuit: %w", err)
		}
	}
	for i, d := range s.Degrades {
		if d == nil {
			return fmt.Errorf("degrade %d: empty config", i)
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("degrade %d: %w", i, err)
		}
	}
	return nil
}

// Degrade returns the first degrade config covering err, or nil.
func (s *Set) Degrade(err error, base *errcause.Cause) *DegradeConfig {
	for _, d := range s.Degrades {
		if d.Applies(err, base) {
			return d
		}
	}
	return nil
}
