package prng

import "math"

const (
	dotnetMBig  = math.MaxInt32
	dotnetMSeed = 161803398
)

// DotNet is System.Random(int) from the .NET Framework (and the seeded
// compatibility path of later runtimes): Knuth's subtractive generator
// over a 55-element lagged table.
//
// Next(bound) is computed as int(sample * bound) where
// sample = InternalSample() * (1.0 / int32.MaxValue).
type DotNet struct{}

func (DotNet) Name() string { return "dotnet" }

func (DotNet) SeedRange() (int64, int64) { return math.MinInt32, math.MaxInt32 }

func (DotNet) New(seed int64) Source {
	return newDotnetSource(int32(seed))
}

type dotnetSource struct {
	seedArray [56]int32
	inext     int
	inextp    int
}

func newDotnetSource(seed int32) *dotnetSource {
	s := &dotnetSource{}

	var subtraction int32
	switch {
	case seed == math.MinInt32:
		subtraction = math.MaxInt32
	case seed < 0:
		subtraction = -seed
	default:
		subtraction = seed
	}

	mj := dotnetMSeed - subtraction
	s.seedArray[55] = mj
	mk := int32(1)
	for i := 1; i < 55; i++ {
		ii := (21 * i) % 55
		s.seedArray[ii] = mk
		mk = mj - mk
		if mk < 0 {
			mk += dotnetMBig
		}
		mj = s.seedArray[ii]
	}
	for k := 1; k < 5; k++ {
		for i := 1; i < 56; i++ {
			s.seedArray[i] -= s.seedArray[1+(i+30)%55]
			if s.seedArray[i] < 0 {
				s.seedArray[i] += dotnetMBig
			}
		}
	}
	s.inext = 0
	s.inextp = 21
	return s
}

// internalSample is Random.InternalSample: one step of the recurrence,
// returning a value in [0, int32.MaxValue).
func (s *dotnetSource) internalSample() int32 {
	locINext := s.inext + 1
	if locINext >= 56 {
		locINext = 1
	}
	locINextp := s.inextp + 1
	if locINextp >= 56 {
		locINextp = 1
	}

	ret := s.seedArray[locINext] - s.seedArray[locINextp]
	if ret == dotnetMBig {
		ret--
	}
	if ret < 0 {
		ret += dotnetMBig
	}

	s.seedArray[locINext] = ret
	s.inext = locINext
	s.inextp = locINextp
	return ret
}

func (s *dotnetSource) sample() float64 {
	return float64(s.internalSample()) * (1.0 / dotnetMBig)
}

func (s *dotnetSource) Intn(bound int) int {
	return int(s.sample() * float64(bound))
}
