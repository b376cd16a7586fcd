package cluster

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/vietddude/livecluster/internal/core/domain"
)

// SelectStrategy picks one endpoint among the viable candidates.
type SelectStrategy int

const (
	SelectRoundRobin SelectStrategy = iota // Sequential rotation per call class
	SelectRandom                           // Uniform random choice
)

// ParseSelectStrategy maps a config value to a strategy. Empty means round
// robin.
func ParseSelectStrategy(s string) (SelectStrategy, error) {
	switch s {
	case "", "round_robin", "round-robin":
		return SelectRoundRobin, nil
	case "random":
		return SelectRandom, nil
	default:
		return 0, fmt.Errorf("unknown select strategy %q", s)
	}
}

// Selector chooses endpoints with a fixed strategy.
type Selector struct {
	mu       sync.Mutex
	strategy SelectStrategy

	lastUsedIndex map[string]int // call class -> next index
	draw          func(n int) int
}

// NewSelector creates a selector with the given strategy.
func NewSelector(strategy SelectStrategy) *Selector {
	return &Selector{
		strategy:      strategy,
		lastUsedIndex: make(map[string]int),
		draw:          rand.IntN,
	}
}

// Select returns one of candidates, or nil when there are none.
func (s *Selector) Select(class string, candidates []domain.Endpoint) domain.Endpoint {
	if len(candidates) == 0 {
		return nil
	}
	switch s.strategy {
	case SelectRandom:
		return candidates[s.draw(len(candidates))]
	default:
		return s.roundRobin(class, candidates)
	}
}

func (s *Selector) roundRobin(class string, candidates []domain.Endpoint) domain.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.lastUsedIndex[class] % len(candidates)
	s.lastUsedIndex[class] = (index + 1) % len(candidates)
	return candidates[index]
}
