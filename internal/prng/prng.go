// Package prng reproduces the pseudo-random generators used by tabulator
// software to order ballots, together with the Fisher-Yates shuffle they
// drive. Every generator is bit-exact with its reference implementation;
// the golden vectors in prng_test.go pin that behaviour.
package prng

import (
	"fmt"
	"sort"
)

// Source is one seeded generator stream. A Source is not safe for
// concurrent use; create one per shuffle.
type Source interface {
	// Intn returns a value in [0, bound) using the generator's own bounded
	// draw. bound must be positive.
	Intn(bound int) int
}

// Model describes a generator family.
type Model interface {
	// Name returns the canonical short identifier (e.g. "dotnet").
	Name() string

	// SeedRange returns the inclusive range of seeds the generator accepts
	// without truncation.
	SeedRange() (min, max int64)

	// New returns a fresh Source initialised from seed.
	New(seed int64) Source
}

var models = map[string]Model{
	"dotnet": DotNet{},
	"msvc":   MSVC{},
}

// Lookup returns the generator registered under name.
func Lookup(name string) (Model, error) {
	m, ok := models[name]
	if !ok {
		return nil, fmt.Errorf("prng: unknown generator %q (known: %v)", name, Names())
	}
	return m, nil
}

// Names returns the registered generator names, sorted.
func Names() []string {
	names := make([]string, 0, len(models))
	for n := range models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
