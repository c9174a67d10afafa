// Package detect implements the plugin.Detector variants selectable in
// settings: the seeded-shuffle search, the scanner sequence inversion,
// and an automatic mode that tries the sequence first.
package detect

import (
	"context"
	"fmt"
	"sort"

	"dvsorder/internal/cvr"
	"dvsorder/internal/plugin"
	"dvsorder/internal/search"
	"dvsorder/internal/sequence"
)

// Shuffle searches a bounded seed space for the shuffle that produced a
// batch's order.
type Shuffle struct {
	engine *search.Engine
	bounds search.Bounds
}

func NewShuffle(engine *search.Engine, bounds search.Bounds) *Shuffle {
	return &Shuffle{engine: engine, bounds: bounds}
}

func (s *Shuffle) Name() string { return "shuffle" }

func (s *Shuffle) Detect(ctx context.Context, b *cvr.Batch) (search.Result, error) {
	ids := b.IDs()
	if len(ids) == 0 {
		return s.engine.Search(ctx, nil, search.Space{})
	}
	if s.bounds == nil {
		return s.empty(len(ids)), fmt.Errorf("%w: no seed bounds configured", search.ErrUnbounded)
	}
	space, err := s.bounds.For(b)
	if err != nil {
		return s.empty(len(ids)), err
	}
	return s.engine.SearchDeclared(ctx, ids, space, b.Count())
}

func (s *Shuffle) empty(n int) search.Result {
	return search.Result{Detector: s.Name(), Model: s.engine.Model().Name(), Size: n}
}

// Sequence inverts scanner record id sequences.
type Sequence struct {
	maxSpanFactor int
}

func NewSequence(maxSpanFactor int) *Sequence {
	return &Sequence{maxSpanFactor: maxSpanFactor}
}

func (s *Sequence) Name() string { return "sequence" }

func (s *Sequence) Detect(_ context.Context, b *cvr.Batch) (search.Result, error) {
	models, err := sequence.ForScanner(b.Model)
	if err != nil {
		return search.Result{Detector: s.Name(), Model: b.Model, Size: len(b.Records)}, err
	}
	return sequence.Best(models, b.IDs(), s.maxSpanFactor)
}

// Auto tries the sequence inversion first and falls back to the shuffle
// search when the ids do not form a plausible sequence.
type Auto struct {
	sequence *Sequence
	shuffle  *Shuffle
}

func NewAuto(seq *Sequence, shuffle *Shuffle) *Auto {
	return &Auto{sequence: seq, shuffle: shuffle}
}

func (a *Auto) Name() string { return "auto" }

func (a *Auto) Detect(ctx context.Context, b *cvr.Batch) (search.Result, error) {
	res, err := a.sequence.Detect(ctx, b)
	if err == nil {
		return res, nil
	}
	return a.shuffle.Detect(ctx, b)
}

var (
	_ plugin.Detector = (*Shuffle)(nil)
	_ plugin.Detector = (*Sequence)(nil)
	_ plugin.Detector = (*Auto)(nil)
)

// Names lists the detector names accepted by settings.
func Names() []string {
	names := []string{"auto", "sequence", "shuffle"}
	sort.Strings(names)
	return names
}
