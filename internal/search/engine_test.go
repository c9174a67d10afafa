package search

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvsorder/internal/cvr"
	"dvsorder/internal/prng"
)

// shuffled returns ids [base, base+n) in the order the generator stores them.
func shuffled(m prng.Model, seed int64, base int64, n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = base + int64(i)
	}
	return prng.Apply(prng.Shuffle(m, seed, n), ids)
}

func TestSearchRecoversSeed(t *testing.T) {
	for _, m := range []prng.Model{prng.DotNet{}, prng.MSVC{}} {
		ids := shuffled(m, 123456, 1000, 50)
		res, err := New(m).Search(context.Background(), ids, Space{Min: 123000, Max: 124000})
		require.NoError(t, err, m.Name())

		require.NotNil(t, res.Seed)
		assert.Equal(t, int64(123456), *res.Seed, m.Name())
		assert.Equal(t, 50, res.Agreement)
		assert.True(t, res.Perfect())
		assert.Equal(t, int64(1000), res.Base)
		assert.Equal(t, uint64(457), res.Evaluated, "stops at the first perfect match")
		for k, id := range ids {
			assert.Equal(t, int(id-1000), res.Original[k])
		}
	}
}

func TestSearchSmallBatchReturnsLowestEquivalentSeed(t *testing.T) {
	cases := []struct {
		model prng.Model
		want  int64
	}{
		{prng.DotNet{}, 25},
		{prng.MSVC{}, 22},
	}
	for _, tc := range cases {
		ids := shuffled(tc.model, 42, 100, 5)
		res, err := New(tc.model).Search(context.Background(), ids, Space{Min: 0, Max: 100})
		require.NoError(t, err)
		require.NotNil(t, res.Seed)
		assert.Equal(t, tc.want, *res.Seed, tc.model.Name())
		assert.Equal(t, prng.Shuffle(tc.model, 42, 5), prng.Shuffle(tc.model, *res.Seed, 5),
			"winning seed is observationally equivalent")
		assert.Equal(t, 5, res.Agreement)
	}
}

func TestSearchTieBreaksOnLowestSeed(t *testing.T) {
	m := prng.DotNet{}
	res, err := New(m).Search(context.Background(), []int64{100, 101}, Space{Min: 10, Max: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(10), *res.Seed)

	res, err = New(m).Search(context.Background(), []int64{101, 100}, Space{Min: 10, Max: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(11), *res.Seed)
}

func TestSearchDeterministic(t *testing.T) {
	m := prng.MSVC{}
	ids := shuffled(m, 9000, 200, 5)
	e := New(m)
	a, errA := e.Search(context.Background(), ids, Space{Min: 40, Max: 44})
	b, errB := e.Search(context.Background(), ids, Space{Min: 40, Max: 44})
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
	assert.Equal(t, int64(41), *a.Seed)
	assert.Equal(t, 1, a.Agreement)
	assert.Equal(t, 3, a.Ties)
}

func TestSearchNegativeControl(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	m := prng.DotNet{}
	for trial := 0; trial < 5; trial++ {
		ids := make([]int64, 20)
		for i, p := range r.Perm(20) {
			ids[i] = 300 + int64(p)
		}
		res, err := New(m).Search(context.Background(), ids, Space{Min: 0, Max: 2000})
		require.NoError(t, err)
		assert.Less(t, res.Agreement, 20, "trial %d", trial)
		assert.Equal(t, uint64(2001), res.Evaluated)
	}
}

func TestSearchToleratesDuplicate(t *testing.T) {
	m := prng.DotNet{}
	ids := shuffled(m, 777, 500, 20)
	ids[5] = ids[0]

	res, err := New(m).Search(context.Background(), ids, Space{Min: 700, Max: 800})
	require.NoError(t, err)
	assert.Equal(t, int64(777), *res.Seed)
	assert.Equal(t, 19, res.Agreement)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, -1, res.Original[5], "the overwritten position is unexplained")
}

func TestSearchToleratesDuplicateOfLowestID(t *testing.T) {
	m := prng.MSVC{}
	ids := shuffled(m, 777, 500, 20)
	for i, id := range ids {
		if id == 500 {
			ids[i] = ids[(i+1)%len(ids)]
		}
	}

	res, err := New(m).Search(context.Background(), ids, Space{Min: 700, Max: 800})
	require.NoError(t, err)
	assert.Equal(t, int64(777), *res.Seed)
	assert.Equal(t, int64(500), res.Base, "upper anchor recovers the range")
	assert.Equal(t, 19, res.Agreement)
}

func TestSearchToleratesExtraCopy(t *testing.T) {
	m := prng.DotNet{}
	ids := shuffled(m, 42, 100, 9)
	ids = append(ids, ids[3])

	res, err := New(m).Search(context.Background(), ids, Space{Min: 0, Max: 1000})
	require.NoError(t, err)
	require.NotNil(t, res.Seed)
	assert.Equal(t, int64(42), *res.Seed)
	assert.Equal(t, 9, res.Length, "read as nine ballots plus a copy")
	assert.Equal(t, 9, res.Agreement)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 0, res.Gaps)
	assert.Equal(t, -1, res.Original[9], "the copy is unexplained")
	for k, id := range ids[:9] {
		assert.Equal(t, int(id-100), res.Original[k])
	}
}

func TestSearchDeclaredCountCoversMissingHighestID(t *testing.T) {
	m := prng.DotNet{}
	var ids []int64
	for _, id := range shuffled(m, 42, 100, 10) {
		if id != 109 {
			ids = append(ids, id)
		}
	}

	res, err := New(m).Search(context.Background(), ids, Space{Min: 0, Max: 1000})
	require.NoError(t, err)
	assert.False(t, res.Perfect(), "nine ids alone do not reveal the tenth ballot")

	res, err = New(m).SearchDeclared(context.Background(), ids, Space{Min: 0, Max: 1000}, 10)
	require.NoError(t, err)
	require.NotNil(t, res.Seed)
	assert.Equal(t, int64(42), *res.Seed)
	assert.Equal(t, int64(100), res.Base)
	assert.Equal(t, 10, res.Length)
	assert.Equal(t, 1, res.Gaps)
	assert.True(t, res.Perfect())
	assert.Equal(t, uint64(128), res.Evaluated)
}

func TestSearchDeclaredCountNotAboveRecords(t *testing.T) {
	m := prng.MSVC{}
	ids := shuffled(m, 123456, 1000, 50)
	res, err := New(m).SearchDeclared(context.Background(), ids, Space{Min: 123000, Max: 124000}, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(457), res.Evaluated, "no extra reading is scored")
}

func TestSearchWithMissingBallots(t *testing.T) {
	m := prng.DotNet{}
	full := shuffled(m, 31337, 1000, 30)
	var ids []int64
	for k, id := range full {
		if k == 3 || k == 10 || k == 20 {
			continue
		}
		ids = append(ids, id)
	}

	res, err := New(m).Search(context.Background(), ids, Space{Min: 31000, Max: 32000})
	require.NoError(t, err)
	assert.Equal(t, int64(31337), *res.Seed)
	assert.Equal(t, 30, res.Length)
	assert.Equal(t, 27, res.Agreement)
	assert.Equal(t, 3, res.Gaps)
	assert.True(t, res.Perfect())
}

func TestSearchEmptyBatch(t *testing.T) {
	res, err := New(prng.DotNet{}).Search(context.Background(), nil, Space{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Size)
	assert.Nil(t, res.Seed)
	assert.False(t, res.Perfect())
}

func TestSearchImplausibleSpan(t *testing.T) {
	_, err := New(prng.DotNet{}).Search(context.Background(), []int64{1, 1000}, Space{Min: 0, Max: 10})
	require.ErrorIs(t, err, ErrImplausibleSpan)

	_, err = New(prng.DotNet{}, WithMaxSpanFactor(1000)).Search(context.Background(), []int64{1, 1000}, Space{Min: 0, Max: 10})
	require.NoError(t, err)
}

func TestSearchExtremeIDs(t *testing.T) {
	cases := [][]int64{
		{0, math.MaxInt64},
		{math.MinInt64, math.MaxInt64},
		{math.MinInt64, 0, 1},
		{-5, math.MaxInt64, 7},
	}
	for _, ids := range cases {
		_, err := New(prng.DotNet{}).Search(context.Background(), ids, Space{Min: 0, Max: 10})
		require.ErrorIs(t, err, ErrImplausibleSpan, "%v", ids)
	}

	// Close together at either end of the range is still searchable.
	for _, base := range []int64{math.MinInt64, math.MaxInt64 - 2} {
		ids := []int64{base + 2, base, base + 1}
		res, err := New(prng.DotNet{}).SearchDeclared(context.Background(), ids, Space{Min: 0, Max: 10}, 5)
		require.NoError(t, err, "%d", base)
		assert.Equal(t, 3, res.Size)
	}
}

func TestSearchEmptySpace(t *testing.T) {
	_, err := New(prng.DotNet{}).Search(context.Background(), []int64{1, 2}, Space{Min: 10, Max: 5})
	require.ErrorIs(t, err, ErrUnbounded)

	// Entirely outside the generator's seed range.
	_, err = New(prng.MSVC{}).Search(context.Background(), []int64{1, 2}, Space{Min: -10, Max: -1})
	require.ErrorIs(t, err, ErrUnbounded)
}

func TestSearchCandidateBudget(t *testing.T) {
	m := prng.DotNet{}
	ids := shuffled(m, 500, 100, 30)
	res, err := New(m, WithBudget(Budget{MaxCandidates: 10})).Search(context.Background(), ids, Space{Min: 0, Max: 1000})
	require.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, uint64(10), res.Evaluated)
	assert.Less(t, res.Agreement, 30)

	res, err = New(m, WithBudget(Budget{MaxCandidates: 1000})).Search(context.Background(), ids, Space{Min: 0, Max: 1000})
	require.NoError(t, err, "a perfect match inside the budget is reported")
	assert.Equal(t, int64(500), *res.Seed)
}

func TestSearchTimeout(t *testing.T) {
	m := prng.DotNet{}
	ids := shuffled(m, 1, 0, 200)
	_, err := New(m, WithBudget(Budget{Timeout: time.Nanosecond})).Search(context.Background(), ids, Space{Min: 2, Max: 1 << 30})
	require.ErrorIs(t, err, ErrBudgetExhausted)
}

func TestSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(prng.DotNet{}).Search(ctx, []int64{1, 2, 3}, Space{Min: 0, Max: 10})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFixedBounds(t *testing.T) {
	s, err := Fixed{Min: 3, Max: 9}.For(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), s.Size())

	_, err = Fixed{Min: 9, Max: 3}.For(nil)
	require.ErrorIs(t, err, ErrUnbounded)
}

func TestTimestampBounds(t *testing.T) {
	around := time.Date(2020, 11, 3, 7, 0, 0, 0, time.UTC)
	b := Timestamp{Around: &around, Window: time.Minute}

	s, err := b.For(&cvr.Batch{})
	require.NoError(t, err)
	assert.Equal(t, Space{Min: around.Unix() - 60, Max: around.Unix() + 60}, s)

	own := around.Add(time.Hour)
	s, err = b.For(&cvr.Batch{Timestamp: &own})
	require.NoError(t, err)
	assert.Equal(t, own.Unix()-60, s.Min, "batch timestamp takes precedence")

	ms := Timestamp{Window: time.Second, Unit: time.Millisecond}
	s, err = ms.For(&cvr.Batch{Timestamp: &own})
	require.NoError(t, err)
	assert.Equal(t, uint64(2001), s.Size())

	_, err = Timestamp{Window: time.Minute}.For(&cvr.Batch{})
	require.ErrorIs(t, err, ErrUnbounded)
}

func TestSpaceClamp(t *testing.T) {
	s := Space{Min: -5, Max: 1 << 40}.Clamp(0, 100)
	assert.Equal(t, Space{Min: 0, Max: 100}, s)
	assert.Equal(t, "[0, 100]", s.String())
}
