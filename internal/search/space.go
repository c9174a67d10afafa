package search

import (
	"fmt"
	"time"

	"dvsorder/internal/cvr"
)

// Space is an inclusive range of candidate seeds.
type Space struct {
	Min int64 `yaml:"min"`
	Max int64 `yaml:"max"`
}

// Size returns the number of seeds in s; 0 for an empty range.
func (s Space) Size() uint64 {
	if s.Max < s.Min {
		return 0
	}
	return uint64(s.Max-s.Min) + 1
}

// Clamp intersects s with [lo, hi].
func (s Space) Clamp(lo, hi int64) Space {
	return Space{Min: max(s.Min, lo), Max: min(s.Max, hi)}
}

func (s Space) String() string {
	return fmt.Sprintf("[%d, %d]", s.Min, s.Max)
}

// Bounds derives the admissible seed space for one batch.
type Bounds interface {
	For(b *cvr.Batch) (Space, error)
}

// Fixed applies the same seed space to every batch.
type Fixed Space

func (f Fixed) For(*cvr.Batch) (Space, error) {
	s := Space(f)
	if s.Size() == 0 {
		return Space{}, fmt.Errorf("%w: empty seed range %s", ErrUnbounded, s)
	}
	return s, nil
}

// Timestamp centres the seed space on a clock reading: the batch's own
// timestamp when the export records one, otherwise Around. Seeds are the
// clock value expressed in Unit (seconds or milliseconds since the Unix
// epoch), ±Window.
type Timestamp struct {
	Around *time.Time
	Window time.Duration
	Unit   time.Duration
}

func (t Timestamp) For(b *cvr.Batch) (Space, error) {
	centre := t.Around
	if b != nil && b.Timestamp != nil {
		centre = b.Timestamp
	}
	if centre == nil {
		return Space{}, fmt.Errorf("%w: batch has no timestamp and no default instant is configured", ErrUnbounded)
	}
	unit := t.Unit
	if unit <= 0 {
		unit = time.Second
	}
	c := centre.UnixNano() / int64(unit)
	w := int64(t.Window / unit)
	return Space{Min: c - w, Max: c + w}, nil
}
