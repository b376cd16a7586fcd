package policy

import (
	"errors"
	"sync"
	"time"
)

// RetryPolicy bounds failover retries. The embedded ErrorPolicy lists the
// retryable status codes, exceptions and messages.
type RetryPolicy struct {
	ErrorPolicy `yaml:",inline" mapstructure:",squash"`

	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	Interval   time.Duration `yaml:"interval"    mapstructure:"interval"`

	// Methods lists retryable method names. Empty means every method.
	Methods []string `yaml:"methods" mapstructure:"methods"`

	methodsOnce sync.Once
	methods     map[string]struct{}
}

// DefaultRetryPolicy retries transport failures twice, 100ms apart.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: 2,
		Interval:   100 * time.Millisecond,
	}
}

// Validate checks bounds.
func (p *RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("retry max_retries must be >= 0")
	}
	if p.Interval < 0 {
		return errors.New("retry interval must be >= 0")
	}
	return p.ErrorPolicy.Compile()
}

// Attempts is the total number of tries, MaxRetries+1.
func (p *RetryPolicy) Attempts() int {
	if p == nil || p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// AllowsMethod reports whether method may be retried.
func (p *RetryPolicy) AllowsMethod(method string) bool {
	if p == nil {
		return false
	}
	p.methodsOnce.Do(func() {
		p.methods = toSet(p.Methods)
	})
	if len(p.methods) == 0 {
		return true
	}
	_, ok := p.methods[method]
	return ok
}
