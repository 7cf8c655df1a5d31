// Package id generates sortable identifiers for navigations.
//
// IDs are prefixed ULIDs ("nav_01J...") so log lines for one navigation and
// its refresh hops can be grepped together and ordered by start time.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// NavigationID identifies one Open call and all of its refresh hops.
type NavigationID string

// NavigationPrefix tags navigation IDs.
const NavigationPrefix = "nav"

// Generator produces monotonic ULIDs.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with monotonic crypto entropy, so IDs
// minted in the same millisecond still sort in creation order.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator over a caller-supplied source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// WithPrefix creates a "prefix_ULID" string.
func (g *Generator) WithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewNavigationID mints a navigation ID from the default generator.
func NewNavigationID() NavigationID {
	return NavigationID(Default().WithPrefix(NavigationPrefix))
}

func (n NavigationID) String() string { return string(n) }

// Time returns the instant the navigation ID was minted.
func (n NavigationID) Time() (time.Time, error) {
	raw, ok := strings.CutPrefix(string(n), NavigationPrefix+"_")
	if !ok {
		return time.Time{}, fmt.Errorf("not a navigation id: %q", n)
	}
	u, err := ulid.ParseStrict(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
