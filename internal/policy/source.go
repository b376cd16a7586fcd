package policy

import (
	"fmt"
	"sync"
)

// Source supplies the policy snapshot for a service and method. Returned
// sets are compiled and must be treated as read-only.
type Source interface {
	Policies(service, method string) *Set
}

// Key is the lookup key of a service-level (method == "") or method-level
// policy set.
func Key(service, method string) string {
	if method == "" {
		return service
	}
	return service + "/" + method
}

// StaticSource serves sets from memory. Lookups fall back from the method
// set to the service set to the default set.
type StaticSource struct {
	mu       sync.RWMutex
	sets     map[string]*Set
	fallback *Set
}

// NewStaticSource creates a source whose default is fallback, or DefaultSet
// when fallback is nil.
func NewStaticSource(fallback *Set) (*StaticSource, error) {
	if fallback == nil {
		fallback = DefaultSet()
	}
	if err := fallback.Compile(); err != nil {
		return nil, fmt.Errorf("invalid default policy: %w", err)
	}
	return &StaticSource{
		sets:     make(map[string]*Set),
		fallback: fallback,
	}, nil
}

// Put compiles and registers set for service and method.
func (s *StaticSource) Put(service, method string, set *Set) error {
	if err := set.Compile(); err != nil {
		return fmt.Errorf("invalid policy %s: %w", Key(service, method), err)
	}
	s.mu.Lock()
	s.sets[Key(service, method)] = set
	s.mu.Unlock()
	return nil
}

// Replace compiles every set and swaps the whole table. On error the current
// table is kept.
func (s *StaticSource) Replace(sets map[string]*Set) error {
	next := make(map[string]*Set, len(sets))
	for key, set := range sets {
		if err := set.Compile(); err != nil {
			return fmt.Errorf("invalid policy %s: %w", key, err)
		}
		next[key] = set
	}
	s.mu.Lock()
	s.sets = next
	s.mu.Unlock()
	return nil
}

// Len returns the number of registered sets.
func (s *StaticSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets)
}

// Policies implements Source.
func (s *StaticSource) Policies(service, method string) *Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if set, ok := s.sets[Key(service, method)]; ok {
		return set
	}
	if set, ok := s.sets[Key(service, "")]; ok {
		return set
	}
	return s.fallback
}
