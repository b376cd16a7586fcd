// Package errcause normalizes an error chain into the set of type names, the
// root message and the first error code found, so that retry, circuit and
// degrade policies can be matched with plain string-set comparisons.
package errcause

// Cause is the read-only projection of an error chain built once per failed
// call.
type Cause struct {
	// Cause is the node that best represents the failure. Nil when the error
	// was a remote descriptor without a live error.
	Cause   error
	Code    string
	Message string

	// Names holds the resolved type names of every visited node plus their
	// declared ancestors, up to (not beyond) a predicate match.
	Names map[string]struct{}

	// Matched is set when a caller-supplied predicate matched a node.
	Matched bool
}

// Policy is satisfied by error policies that a Cause can be matched against.
type Policy interface {
	MatchCode(code string) bool
	MatchMessage(message string) bool
	TargetExceptions() map[string]struct{}
}

// Match reports whether the cause satisfies the policy. Matching is an OR
// across predicate match, code, message and exception name intersection.
func (c *Cause) Match(p Policy) bool {
	if c == nil || p == nil {
		return false
	}
	if c.Matched {
		return true
	}
	if c.Code != "" && p.MatchCode(c.Code) {
		return true
	}
	if c.Message != "" && p.MatchMessage(c.Message) {
		return true
	}
	return intersects(c.Names, p.TargetExceptions())
}

// HasName reports whether name was recorded for the chain.
func (c *Cause) HasName(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Names[name]
	return ok
}

// intersects iterates the smaller set and probes the larger one.
func intersects(a, b map[string]struct{}) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	for name := range a {
		if _, ok := b[name]; ok {
			return true
		}
	}
	return false
}
