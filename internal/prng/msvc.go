package prng

import "math"

// MSVC is the Microsoft C runtime srand/rand linear congruential generator.
//
//	state = state*214013 + 2531011  (mod 2^32)
//	rand  = (state >> 16) & 0x7fff
//
// Bounded draws are taken as rand() % bound, modulo bias included.
type MSVC struct{}

func (MSVC) Name() string { return "msvc" }

func (MSVC) SeedRange() (int64, int64) { return 0, math.MaxUint32 }

func (MSVC) New(seed int64) Source {
	return &msvcSource{state: uint32(seed)}
}

type msvcSource struct {
	state uint32
}

// NextState advances state by one step and returns the new state and the
// 15-bit output it yields.
func NextState(state uint32) (uint32, uint32) {
	state = state*214013 + 2531011
	return state, (state >> 16) & 0x7fff
}

func (s *msvcSource) next() uint32 {
	var out uint32
	s.state, out = NextState(s.state)
	return out
}

func (s *msvcSource) Intn(bound int) int {
	return int(s.next() % uint32(bound))
}
