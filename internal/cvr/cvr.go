// Package cvr extracts per-batch ballot record identifiers from
// cast-vote-record exports.
//
// Three container formats are understood:
//
//	*.csv                 - CSV export (four header rows, one row per ballot)
//	*.zip (default)       - zipped JSON export (manifests + CvrExport*.json)
//	*.zip (Images=true)   - ballot-image archive (<tab>_<batch>_<record>.tif)
//
// Batches are returned in first-seen order and records in export order;
// both orders are significant to the analysis.
package cvr

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformed marks a batch (or file) whose content could not be
	// mapped onto ballot records.
	ErrMalformed = errors.New("cvr: malformed export")

	// ErrUnsupported is returned for file types no reader handles.
	ErrUnsupported = errors.New("cvr: unsupported file type")
)

// Scanner model names as they appear in TabulatorManifest.json.
const (
	ModelImageCastPrecinct  = "ImagecastPrecinct"
	ModelImageCastEvolution = "ImagecastEvolution"
)

// BallotRecord is one ballot as observed in the export.
type BallotRecord struct {
	// ObservedPosition is the 0-based index within the batch in export order.
	ObservedPosition int `yaml:"observed_position"`
	// RecordID is the identifier the tabulator assigned to the ballot.
	RecordID int64 `yaml:"record_id"`
}

// Key identifies a batch within one export file.
type Key struct {
	Tabulator int `yaml:"tabulator"`
	Batch     int `yaml:"batch"`
}

func (k Key) String() string {
	return fmt.Sprintf("tabulator %d batch %d", k.Tabulator, k.Batch)
}

// Batch is the unit of shuffling: the ballots one tabulator stored together.
type Batch struct {
	Source string
	Key    Key
	// Model is the scanner model from the tabulator manifest, if known.
	Model string
	// Timestamp is auxiliary export metadata usable to bound seed searches.
	Timestamp *time.Time
	Records   []BallotRecord
	// DeclaredCount is the number of ballots the export shows for the
	// batch, counting sanitized records whose ids are withheld; 0 if none
	// are withheld.
	DeclaredCount int
	// Err is set when the batch could not be extracted; such batches are
	// reported as undetermined and never analyzed.
	Err error
}

// IDs returns the record identifiers in export order.
func (b *Batch) IDs() []int64 {
	ids := make([]int64, len(b.Records))
	for i, r := range b.Records {
		ids[i] = r.RecordID
	}
	return ids
}

// Count returns the declared ballot count, falling back to len(Records).
func (b *Batch) Count() int {
	if b.DeclaredCount > 0 {
		return b.DeclaredCount
	}
	return len(b.Records)
}

// Export is the extracted content of one input file.
type Export struct {
	Path        string
	Description string
	Version     string
	// TabulatorModels maps tabulator id to scanner model (JSON exports only).
	TabulatorModels map[int]string
	Batches         []Batch
	// Skipped counts records or members dropped during extraction
	// (sanitized ids, unparseable image names).
	Skipped int
}

// batchSet accumulates records per key while preserving first-seen order.
type batchSet struct {
	source string
	index  map[Key]int
	list   []Batch
	hidden map[Key]int
}

func newBatchSet(source string) *batchSet {
	return &batchSet{source: source, index: make(map[Key]int), hidden: make(map[Key]int)}
}

func (s *batchSet) get(k Key) *Batch {
	i, ok := s.index[k]
	if !ok {
		i = len(s.list)
		s.index[k] = i
		s.list = append(s.list, Batch{Source: s.source, Key: k})
	}
	return &s.list[i]
}

func (s *batchSet) add(k Key, recordID int64) *Batch {
	b := s.get(k)
	b.Records = append(b.Records, BallotRecord{ObservedPosition: len(b.Records), RecordID: recordID})
	return b
}

// withhold records a ballot of k whose id was sanitized.
func (s *batchSet) withhold(k Key) {
	s.get(k)
	s.hidden[k]++
}

// fail marks the batch malformed; the first error wins.
func (s *batchSet) fail(k Key, err error) {
	b := s.get(k)
	if b.Err == nil {
		b.Err = fmt.Errorf("%w: %s: %v", ErrMalformed, k, err)
	}
}

func (s *batchSet) batches() []Batch {
	for i := range s.list {
		b := &s.list[i]
		if h := s.hidden[b.Key]; h > 0 {
			b.DeclaredCount = len(b.Records) + h
		}
	}
	return s.list
}
