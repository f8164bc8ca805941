package testfixtures

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// fixtureNamespace seeds the name-based UUIDs handed out by UUID generators.
var fixtureNamespace = uuid.MustParse("6f1c4f0e-2d43-4a8e-9b7a-3c5d8e2f1a90")

// IDGenerator produces deterministic identifiers for tests.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
	uuids   bool
}

// NewIDGenerator yields "<prefix>-<n>" identifiers. An empty prefix means "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// NewUUIDGenerator yields stable version 5 UUIDs derived from prefix and a
// counter, for code paths that reject identifiers which are not UUIDs.
func NewUUIDGenerator(prefix string) *IDGenerator {
	g := NewIDGenerator(prefix)
	g.uuids = true
	return g
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	name := fmt.Sprintf("%s-%d", g.prefix, g.counter)
	if g.uuids {
		return uuid.NewSHA1(fixtureNamespace, []byte(name)).String()
	}
	return name
}

// NextFunc exposes Next as a function suitable for dependency injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Reset restarts the sequence so the same identifiers are produced again.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.counter = 0
	g.mu.Unlock()
}
