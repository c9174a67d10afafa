// Package sequence models scanners that number ballots with a fixed
// pseudo-random sequence instead of shuffling them.
//
// ImageCast Precinct and ImageCast Evolution units assign the n-th ballot
// of a session the record id
//
//	x  = 864803 * n mod 1000000
//	id = digits of x substituted through [5 0 8 3 2 6 1 9 4 7]
//	     and rearranged in a scanner-specific order
//
// The map n → id is a bijection on [0, 1000000), so every id can be
// inverted to its cast index. A batch whose inverted indices cluster in a
// narrow window has its cast order fully exposed.
package sequence

import (
	"errors"
	"fmt"
	"sync"

	"dvsorder/internal/cvr"
	"dvsorder/internal/search"
)

const (
	modulus    = 1_000_000
	multiplier = 864803

	// Indices this close to both ends of the modulus are treated as one
	// run that wrapped around.
	wrapMargin = 100
)

var substitution = [10]int64{5, 0, 8, 3, 2, 6, 1, 9, 4, 7}

// ErrScannerNotAffected is returned for scanner models that do not use a
// predictable record id sequence.
var ErrScannerNotAffected = errors.New("sequence: scanner model does not number ballots predictably")

// Model is one scanner's record id sequence.
type Model struct {
	name string
	// order[k] is the digit of x placed at decimal position k of the id.
	order [6]int

	once    sync.Once
	inverse []int32
}

var (
	Precinct  = &Model{name: cvr.ModelImageCastPrecinct, order: [6]int{2, 3, 1, 5, 0, 4}}
	Evolution = &Model{name: cvr.ModelImageCastEvolution, order: [6]int{1, 5, 0, 4, 2, 3}}
)

func (m *Model) Name() string { return m.name }

// Nth returns the record id assigned to the n-th ballot.
func (m *Model) Nth(n int64) int64 {
	x := (multiplier * (n % modulus)) % modulus
	if x < 0 {
		x += modulus
	}
	var id, scale int64 = 0, 1
	for k := 0; k < 6; k++ {
		id += substitution[digit(x, m.order[k])] * scale
		scale *= 10
	}
	return id
}

// Index returns n such that Nth(n) == id mod 1000000.
func (m *Model) Index(id int64) int64 {
	m.once.Do(m.build)
	id %= modulus
	if id < 0 {
		id += modulus
	}
	return int64(m.inverse[id])
}

func (m *Model) build() {
	m.inverse = make([]int32, modulus)
	for n := int64(0); n < modulus; n++ {
		m.inverse[m.Nth(n)] = int32(n)
	}
}

func digit(x int64, pos int) int64 {
	for ; pos > 0; pos-- {
		x /= 10
	}
	return x % 10
}

// ForScanner returns the models to try for a batch. An empty scanner name
// (formats without a tabulator manifest) yields both models.
func ForScanner(scanner string) ([]*Model, error) {
	switch scanner {
	case "":
		return []*Model{Precinct, Evolution}, nil
	case Precinct.name:
		return []*Model{Precinct}, nil
	case Evolution.name:
		return []*Model{Evolution}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrScannerNotAffected, scanner)
	}
}

// Unshuffle inverts ids through m and aligns them on their cast indices.
// Returns search.ErrImplausibleSpan when the indices are spread wider than
// maxSpanFactor times the number of records.
func Unshuffle(m *Model, ids []int64, maxSpanFactor int) (search.Result, error) {
	n := len(ids)
	res := search.Result{Detector: "sequence", Model: m.name, Size: n, Original: make([]int, n), Evaluated: 1}
	for i := range res.Original {
		res.Original[i] = -1
	}
	if n == 0 {
		return res, nil
	}
	if maxSpanFactor < 1 {
		maxSpanFactor = search.DefaultMaxSpanFactor
	}

	indices := make([]int64, n)
	for i, id := range ids {
		indices[i] = m.Index(id)
	}
	lowest, highest := bounds(indices)
	if lowest < wrapMargin && highest > modulus-wrapMargin {
		for i := range indices {
			indices[i] = (indices[i] + modulus/2) % modulus
		}
		lowest, highest = bounds(indices)
	}

	span := highest - lowest + 1
	seen := make(map[int64]bool, n)
	for i, idx := range indices {
		if seen[idx] {
			res.Duplicates++
			continue
		}
		seen[idx] = true
		res.Original[i] = int(idx - lowest)
		res.Agreement++
	}
	res.Base = lowest
	res.Gaps = int(span) - len(seen)

	if span > int64(maxSpanFactor)*int64(n) {
		res.Agreement = 0
		res.Gaps = 0
		for i := range res.Original {
			res.Original[i] = -1
		}
		return res, fmt.Errorf("%w: sequence span %d for %d records (%s)", search.ErrImplausibleSpan, span, n, m.name)
	}
	res.Length = int(span)
	return res, nil
}

// Best tries every model and keeps the alignment with the fewest missing
// ballots; ties go to the later model. If no model yields a plausible
// alignment the last error is returned.
func Best(models []*Model, ids []int64, maxSpanFactor int) (search.Result, error) {
	var (
		best    search.Result
		found   bool
		lastErr error
	)
	for _, m := range models {
		res, err := Unshuffle(m, ids, maxSpanFactor)
		if err != nil {
			lastErr = err
			if !found {
				best = res
			}
			continue
		}
		if !found || res.Gaps <= best.Gaps {
			best, found = res, true
		}
	}
	best.Evaluated = uint64(len(models))
	if !found {
		return best, lastErr
	}
	return best, nil
}

func bounds(xs []int64) (lo, hi int64) {
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	return lo, hi
}
