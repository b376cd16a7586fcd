// Package policy holds the declarative resilience policies consulted for
// every outgoing call: error matching, retry, cluster invoker, admission
// limits, circuit breaking and degrade responses.
//
// Policies are decoded once, compiled with Set.Compile and then treated as
// read-only snapshots.
package policy

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/vietddude/livecluster/internal/errcause"
)

// ErrorPolicy selects errors by code, exception name, message pattern or a
// custom condition. A hit on any dimension qualifies.
type ErrorPolicy struct {
	Enabled    *bool    `yaml:"enabled"     mapstructure:"enabled"`
	ErrorCodes []string `yaml:"error_codes" mapstructure:"error_codes"`
	Exceptions []string `yaml:"exceptions"  mapstructure:"exceptions"`
	Messages   []string `yaml:"messages"    mapstructure:"messages"`

	// Condition is an expr-lang boolean expression evaluated against each
	// chain node with the variables name, code and message.
	Condition string `yaml:"condition" mapstructure:"condition"`

	once       sync.Once
	compileErr error
	codes      map[string]struct{}
	exceptions map[string]struct{}
	patterns   []*regexp.Regexp
	program    *vm.Program
}

type conditionEnv struct {
	Name    string `expr:"name"`
	Code    string `expr:"code"`
	Message string `expr:"message"`
}

// Compile builds the lookup sets, regular expressions and condition program.
// It is idempotent and safe for concurrent first use.
func (p *ErrorPolicy) Compile() error {
	p.once.Do(func() {
		p.codes = toSet(p.ErrorCodes)
		p.exceptions = toSet(p.Exceptions)

		for _, m := range p.Messages {
			re, err := regexp.Compile(m)
			if err != nil {
				p.compileErr = fmt.Errorf("invalid message pattern %q: %w", m, err)
				return
			}
			p.patterns = append(p.patterns, re)
		}

		if p.Condition != "" {
			program, err := expr.Compile(p.Condition, expr.Env(conditionEnv{}), expr.AsBool())
			if err != nil {
				p.compileErr = fmt.Errorf("invalid condition %q: %w", p.Condition, err)
				return
			}
			p.program = program
		}
	})
	return p.compileErr
}

// IsEnabled defaults to true when unset.
func (p *ErrorPolicy) IsEnabled() bool {
	return p != nil && (p.Enabled == nil || *p.Enabled)
}

// Empty reports whether the policy names no error criteria at all.
func (p *ErrorPolicy) Empty() bool {
	return len(p.ErrorCodes) == 0 && len(p.Exceptions) == 0 &&
		len(p.Messages) == 0 && p.Condition == ""
}

// MatchCode implements errcause.Policy.
func (p *ErrorPolicy) MatchCode(code string) bool {
	_ = p.Compile()
	_, ok := p.codes[code]
	return ok
}

// MatchMessage implements errcause.Policy.
func (p *ErrorPolicy) MatchMessage(message string) bool {
	_ = p.Compile()
	for _, re := range p.patterns {
		if re.MatchString(message) {
			return true
		}
	}
	return false
}

// TargetExceptions implements errcause.Policy.
func (p *ErrorPolicy) TargetExceptions() map[string]struct{} {
	_ = p.Compile()
	return p.exceptions
}

// Predicate returns the compiled condition as a chain-node predicate, or nil
// when no condition is configured.
func (p *ErrorPolicy) Predicate() errcause.Predicate {
	if p.Compile() != nil || p.program == nil {
		return nil
	}
	program := p.program
	return func(err error) bool {
		name, code := errcause.DefaultResolver(err)
		out, runErr := expr.Run(program, conditionEnv{
			Name:    name,
			Code:    code,
			Message: err.Error(),
		})
		if runErr != nil {
			return false
		}
		matched, _ := out.(bool)
		return matched
	}
}

// Match reports whether err satisfies the policy. base is the condition-free
// classification of err; it is reused unless the policy has a condition.
func (p *ErrorPolicy) Match(err error, base *errcause.Cause) bool {
	if err == nil || !p.IsEnabled() {
		return false
	}
	c := base
	if pred := p.Predicate(); pred != nil {
		c = errcause.Classify(err, errcause.WithPredicate(pred))
	} else if c == nil {
		c = errcause.Classify(err)
	}
	return c.Match(p)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
