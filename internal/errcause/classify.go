package errcause

import (
	"github.com/vietddude/livecluster/internal/core/domain"
)

// maxDepth bounds chain walking for self-referencing error types.
const maxDepth = 64

// Predicate is a custom "does this node already qualify" test.
type Predicate func(err error) bool

type options struct {
	predicate Predicate
	resolver  Resolver
}

// Option configures Classify.
type Option func(*options)

// WithPredicate stops chain walking at the first node satisfying p.
func WithPredicate(p Predicate) Option {
	return func(o *options) { o.predicate = p }
}

// WithResolver replaces DefaultResolver.
func WithResolver(r Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// Classify builds the Cause for err. It returns nil for a nil error.
func Classify(err error, opts ...Option) *Cause {
	if err == nil {
		return nil
	}

	o := options{resolver: DefaultResolver}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cause{Names: make(map[string]struct{})}

	start := err
	if se, ok := err.(*domain.ServiceError); ok {
		// Remote descriptor: names were computed by the peer.
		if se.Remote() {
			for _, name := range se.Exceptions {
				c.Names[name] = struct{}{}
			}
			c.Code = se.Code
			c.Message = se.Message
			return c
		}
		for _, name := range se.Exceptions {
			c.Names[name] = struct{}{}
		}
		if se.Err != nil {
			start = se.Err
		}
		defer func() {
			if c.Code == "" {
				c.Code = se.Code
			}
		}()
	}

	if isWrapper(start) {
		if inner := unwrapOne(start); inner != nil {
			start = inner
		}
	}

	var firstNamed, firstMeta error
	for node, depth := start, 0; node != nil && depth < maxDepth; node, depth = unwrapOne(node), depth+1 {
		if o.predicate != nil && o.predicate(node) {
			c.Cause = node
			c.Message = node.Error()
			c.Matched = true
			return c
		}

		name, code := o.resolver(node)
		if name != "" {
			c.Names[name] = struct{}{}
			if firstNamed == nil {
				firstNamed = node
			}
			// Ancestors only while the resolved name is the declared one;
			// generic remote wrappers would otherwise leak framework names.
			if name == TypeName(node) {
				for _, a := range ancestorsOf(node) {
					if _, root := rootNames[a]; !root && a != "" {
						c.Names[a] = struct{}{}
					}
				}
			}
		}
		if code != "" && c.Code == "" {
			c.Code = code
		}
		if firstMeta == nil && (name != "" || code != "") {
			firstMeta = node
		}
	}

	switch {
	case firstNamed != nil:
		c.Cause = firstNamed
	case firstMeta != nil:
		c.Cause = firstMeta
	default:
		c.Cause = err
	}
	c.Message = c.Cause.Error()
	return c
}
