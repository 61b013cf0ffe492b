package emit

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// NameGenerator produces names for synthesized types.
type NameGenerator interface {
	Generate() string
}

// UUIDv7Names generates time-sortable UUIDv7 names with the hyphens removed,
// so the result is usable as an identifier suffix.
//
// Thread-safety: UUIDv7Names is stateless and safe for concurrent use.
type UUIDv7Names struct{}

// Generate returns a fresh 32-character hex name.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Names) Generate() string {
	return strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
}

// FixedNames returns predetermined names for tests, in order.
//
// Thread-safety: FixedNames is safe for concurrent use via internal mutex.
type FixedNames struct {
	mu    sync.Mutex
	names []string
	idx   int
}

// NewFixedNames creates a generator that returns names in order.
func NewFixedNames(names ...string) *FixedNames {
	return &FixedNames{names: names}
}

// Generate returns the next predetermined name.
//
// Panics once every name has been consumed; a test that synthesizes more
// types than it configured is misconfigured.
func (g *FixedNames) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.names) {
		panic("FixedNames: all names exhausted")
	}
	name := g.names[g.idx]
	g.idx++
	return name
}
