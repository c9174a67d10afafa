// Package search finds the generator seed whose shuffle best explains the
// observed order of a batch.
//
// For every seed in a bounded space the engine shuffles the contiguous
// range of ids the batch held before shuffling, compares the prediction
// to the export position by position and keeps the seed with the most
// agreements. Ties go to the lowest seed; a perfect match ends the search.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dvsorder/internal/prng"
)

var (
	// ErrUnbounded is returned when no finite seed space is available.
	ErrUnbounded = errors.New("search: no seed bound available")

	// ErrBudgetExhausted is returned when the candidate cap or timeout is
	// reached before the space is covered and no perfect match was found.
	ErrBudgetExhausted = errors.New("search: budget exhausted before the seed space was covered")

	// ErrImplausibleSpan is returned when record ids are spread too widely
	// to be one shuffled batch.
	ErrImplausibleSpan = errors.New("search: record id span too wide for one batch")
)

const (
	// DefaultMaxSpanFactor bounds (max_id - min_id + 1) relative to the
	// number of records.
	DefaultMaxSpanFactor = 10

	// DefaultMaxCandidates caps the (seed, length, anchor) triples scored per batch.
	DefaultMaxCandidates = 1 << 24

	// cancellation is polled once per this many seeds.
	pollEvery = 1024
)

// Budget limits the work spent on one batch. Zero fields disable the limit.
type Budget struct {
	MaxCandidates uint64        `yaml:"max_candidates"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Result is the best candidate found for a batch together with its
// alignment against the export.
type Result struct {
	Detector string `yaml:"detector"`
	// Model is the generator (or scanner sequence) that produced the result.
	Model string `yaml:"model"`
	// Seed is nil for detectors that are not seed based.
	Seed *int64 `yaml:"seed,omitempty"`
	// Base is the first id of the pre-shuffle range.
	Base int64 `yaml:"base"`
	// Length is the pre-shuffle batch length (records plus gaps).
	Length int `yaml:"length"`
	// Size is the number of observed records.
	Size      int `yaml:"size"`
	Agreement int `yaml:"agreement"`
	// Original holds, per observed position, the recovered original
	// position or -1 where the candidate does not explain the record.
	Original   []int  `yaml:"-"`
	Evaluated  uint64 `yaml:"evaluated"`
	Ties       int    `yaml:"ties"`
	Duplicates int    `yaml:"duplicates"`
	Gaps       int    `yaml:"gaps"`
}

// Perfect reports whether every observed record is explained.
func (r Result) Perfect() bool {
	return r.Size > 0 && r.Agreement == r.Size
}

// Engine searches seed spaces for one generator model. An Engine holds no
// per-search state and is safe for concurrent use.
type Engine struct {
	model         prng.Model
	budget        Budget
	maxSpanFactor int
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithBudget(b Budget) Option {
	return func(e *Engine) { e.budget = b }
}

// WithMaxSpanFactor sets how sparse a batch's ids may be; values < 1 are ignored.
func WithMaxSpanFactor(f int) Option {
	return func(e *Engine) {
		if f >= 1 {
			e.maxSpanFactor = f
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New returns an Engine for model.
func New(model prng.Model, opts ...Option) *Engine {
	e := &Engine{
		model:         model,
		budget:        Budget{MaxCandidates: DefaultMaxCandidates},
		maxSpanFactor: DefaultMaxSpanFactor,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model returns the generator the engine reproduces.
func (e *Engine) Model() prng.Model { return e.model }

// Search scores every seed in space against ids (record ids in export
// order). The returned Result is meaningful even alongside
// ErrBudgetExhausted: it holds the best candidate seen so far.
func (e *Engine) Search(ctx context.Context, ids []int64, space Space) (Result, error) {
	return e.SearchDeclared(ctx, ids, space, 0)
}

// SearchDeclared is Search for a batch whose export states how many
// ballots it held. A declared count above what the ids account for is
// also tried as the pre-shuffle length; zero means unknown.
func (e *Engine) SearchDeclared(ctx context.Context, ids []int64, space Space, declared int) (Result, error) {
	n := len(ids)
	res := Result{Detector: "shuffle", Model: e.model.Name(), Size: n, Original: unmatched(n)}
	if n == 0 {
		return res, nil
	}

	lo, hi := e.model.SeedRange()
	space = space.Clamp(lo, hi)
	if space.Size() == 0 {
		return res, fmt.Errorf("%w: seed range empty for generator %s", ErrUnbounded, e.model.Name())
	}

	p := newProfile(ids)
	res.Duplicates = n - p.distinct
	if !p.plausible(e.maxSpanFactor, n) {
		return res, fmt.Errorf("%w: ids %d..%d for %d records", ErrImplausibleSpan, p.lo, p.hi, n)
	}
	p.index(ids)
	plans := p.plans(n, declared, e.maxSpanFactor)
	res.Length = plans[0].length
	res.Gaps = max(plans[0].length-p.distinct, 0)

	deadline := ctx
	if e.budget.Timeout > 0 {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(ctx, e.budget.Timeout)
		defer cancel()
	}

	perms := make([][]int, len(plans))
	for i, pl := range plans {
		perms[i] = make([]int, pl.length)
	}
	var (
		best      = -1
		bestSeed  int64
		bestBase  int64
		bestPlan  int
		ties      int
		evaluated uint64
		stopped   error
	)

search:
	for seed := space.Min; ; seed++ {
		if (seed-space.Min)%pollEvery == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if deadline.Err() != nil {
				stopped = fmt.Errorf("%w: timeout %s after %d candidates", ErrBudgetExhausted, e.budget.Timeout, evaluated)
				break search
			}
		}

		for i, pl := range plans {
			prng.ShuffleInto(e.model.New(seed), perms[i])
			for _, base := range pl.anchors {
				if e.budget.MaxCandidates > 0 && evaluated >= e.budget.MaxCandidates {
					stopped = fmt.Errorf("%w: %d candidates", ErrBudgetExhausted, evaluated)
					break search
				}
				evaluated++
				agree := pl.score(perms[i], base, ids, p, nil)
				switch {
				case agree > best:
					best, bestSeed, bestBase, bestPlan, ties = agree, seed, base, i, 0
				case agree == best:
					ties++
				}
				if agree == n {
					break search
				}
			}
		}
		if seed == space.Max {
			break
		}
	}

	res.Evaluated = evaluated
	if best < 0 {
		return res, stopped
	}
	pl := plans[bestPlan]
	prng.ShuffleInto(e.model.New(bestSeed), perms[bestPlan])
	res.Agreement = pl.score(perms[bestPlan], bestBase, ids, p, res.Original)
	res.Seed = &bestSeed
	res.Base = bestBase
	res.Length = pl.length
	res.Gaps = max(pl.length-p.distinct, 0)
	res.Ties = ties

	e.logger.Debug("seed search finished",
		"generator", e.model.Name(),
		"space", space.String(),
		"records", n,
		"seed", bestSeed,
		"length", pl.length,
		"agreement", res.Agreement,
		"evaluated", evaluated,
	)

	if stopped != nil && !res.Perfect() {
		return res, stopped
	}
	return res, nil
}

func unmatched(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = -1
	}
	return out
}
