package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator returns predetermined run IDs in order, then panics.
// Running out means the test compiled more often than it expected.
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDGenerator returns a generator yielding ids in order.
func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids}
}

// Generate returns the next ID.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("FixedIDGenerator: all %d ids used", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SequentialIDGenerator returns "<prefix>-0001", "<prefix>-0002", ...
type SequentialIDGenerator struct {
	prefix string
	clock  DeterministicClock
}

// NewSequentialIDGenerator returns a generator numbering from 1.
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDGenerator) Generate() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.clock.Next())
}
