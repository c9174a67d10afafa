// Package verdict turns search results into per-batch verdicts.
//
// Classification is a pure, total function of a search result and a
// threshold policy: it never searches, never fails and never invents a
// mapping for a record the winning candidate does not explain.
package verdict

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"dvsorder/internal/cvr"
	"dvsorder/internal/search"
	"dvsorder/internal/sequence"
)

// Status is the outcome for one batch.
type Status string

const (
	Vulnerable    Status = "vulnerable"
	NotVulnerable Status = "not-vulnerable"
	// Undetermined batches could not be analyzed (extraction failure, no
	// seed bound, exhausted budget) and are excluded from totals.
	Undetermined Status = "undetermined"
)

// DefaultThreshold requires every record to be explained.
const DefaultThreshold = 1.0

// Policy is the decision rule.
type Policy struct {
	// Threshold is the fraction of records the best candidate must explain,
	// in (0, 1]. Zero means DefaultThreshold.
	Threshold float64
}

// Required returns the agreement count needed for a batch of n records.
func (p Policy) Required(n int) int {
	th := p.Threshold
	if th <= 0 || th > 1 {
		th = DefaultThreshold
	}
	need := int(math.Ceil(th*float64(n) - 1e-9))
	return max(need, 1)
}

// Verdict is the immutable result for one batch.
type Verdict struct {
	Source string  `yaml:"source"`
	Key    cvr.Key `yaml:"key"`
	Status Status  `yaml:"status"`
	// Detector and Model name what explained (or failed to explain) the batch.
	Detector string `yaml:"detector,omitempty"`
	Model    string `yaml:"model,omitempty"`
	// Seed is present iff the batch is vulnerable to a seeded shuffle.
	Seed    *int64 `yaml:"seed,omitempty"`
	Records int    `yaml:"records"`
	Matched int    `yaml:"matched"`
	Missing int    `yaml:"missing"`
	// Unshuffled maps observed position → original position for matched
	// records only.
	Unshuffled map[int]int `yaml:"unshuffled,omitempty"`
	Duplicates int         `yaml:"duplicates,omitempty"`
	Gaps       int         `yaml:"gaps,omitempty"`
	Evaluated  uint64      `yaml:"evaluated,omitempty"`
	Ties       int         `yaml:"ties,omitempty"`
	Reason     string      `yaml:"reason,omitempty"`

	recordIDs []int64
}

// Classify applies policy to the search result for b.
func Classify(b *cvr.Batch, res search.Result, policy Policy) Verdict {
	n := len(b.Records)
	v := Verdict{
		Source:     b.Source,
		Key:        b.Key,
		Status:     NotVulnerable,
		Detector:   res.Detector,
		Model:      res.Model,
		Records:    n,
		Duplicates: res.Duplicates,
		Gaps:       res.Gaps,
		Evaluated:  res.Evaluated,
		Ties:       res.Ties,
		recordIDs:  b.IDs(),
	}
	if n == 0 {
		v.Reason = "empty batch"
		return v
	}

	// Only positions the result actually covers count.
	matched := make(map[int]int)
	for p := 0; p < n && p < len(res.Original); p++ {
		if res.Original[p] >= 0 {
			matched[p] = res.Original[p]
		}
	}
	v.Matched = len(matched)
	v.Missing = n - v.Matched

	need := policy.Required(n)
	if v.Matched < need {
		v.Reason = fmt.Sprintf("best candidate explains %d of %d records (need %d)", v.Matched, n, need)
		return v
	}
	v.Status = Vulnerable
	v.Seed = res.Seed
	v.Unshuffled = matched
	return v
}

// FromError encodes a per-batch failure. Implausible id spans and scanners
// that do not number ballots predictably are data-quality findings and
// yield NotVulnerable; everything else is Undetermined.
func FromError(b *cvr.Batch, err error) Verdict {
	v := Verdict{
		Source:    b.Source,
		Key:       b.Key,
		Status:    Undetermined,
		Records:   len(b.Records),
		Missing:   len(b.Records),
		Reason:    err.Error(),
		recordIDs: b.IDs(),
	}
	if errors.Is(err, search.ErrImplausibleSpan) || errors.Is(err, sequence.ErrScannerNotAffected) {
		v.Status = NotVulnerable
	}
	return v
}

// WithResult attaches search statistics to an error verdict.
func (v Verdict) WithResult(res search.Result) Verdict {
	v.Detector = res.Detector
	v.Model = res.Model
	v.Duplicates = res.Duplicates
	v.Gaps = res.Gaps
	v.Evaluated = res.Evaluated
	return v
}

// Determined reports whether the batch counts towards totals.
func (v Verdict) Determined() bool {
	return v.Status != Undetermined
}

// CastOrder returns the record ids of matched ballots sorted by recovered
// original position, i.e. the order in which they were cast.
func (v Verdict) CastOrder() []CastEntry {
	out := make([]CastEntry, 0, len(v.Unshuffled))
	for p, orig := range v.Unshuffled {
		e := CastEntry{Original: orig, Observed: p}
		if p < len(v.recordIDs) {
			e.RecordID = v.recordIDs[p]
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Original != out[j].Original {
			return out[i].Original < out[j].Original
		}
		return out[i].Observed < out[j].Observed
	})
	return out
}

// CastEntry is one ballot in recovered cast order.
type CastEntry struct {
	Original int   `yaml:"original"`
	Observed int   `yaml:"observed"`
	RecordID int64 `yaml:"record_id"`
}
