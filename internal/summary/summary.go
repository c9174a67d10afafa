// Package summary folds batch verdicts into per-tabulator and per-file
// statistics. Aggregation is a pure reduction; nothing here is mutated
// after Aggregate returns.
package summary

import (
	"fmt"
	"sort"

	"dvsorder/internal/verdict"
)

// TabulatorSummary aggregates the batches of one tabulator.
type TabulatorSummary struct {
	Tabulator           int `yaml:"tabulator"`
	Batches             int `yaml:"batches"`
	VulnerableBatches   int `yaml:"vulnerable_batches"`
	UndeterminedBatches int `yaml:"undetermined_batches,omitempty"`
	Ballots             int `yaml:"ballots"`
	VulnerableBallots   int `yaml:"vulnerable_ballots"`
}

// FileSummary aggregates a whole run.
type FileSummary struct {
	Tabulators []TabulatorSummary `yaml:"tabulators"`

	Batches             int `yaml:"batches"`
	VulnerableBatches   int `yaml:"vulnerable_batches"`
	UndeterminedBatches int `yaml:"undetermined_batches"`
	// VulnerableBallots sums Matched over vulnerable batches.
	VulnerableBallots int `yaml:"vulnerable_ballots"`
	// TotalBallots sums record counts over determined batches.
	TotalBallots int `yaml:"total_ballots"`
	// UndeterminedBallots are excluded from TotalBallots.
	UndeterminedBallots int `yaml:"undetermined_ballots"`
}

// Aggregate reduces verdicts. Undetermined batches are counted but do not
// contribute ballots to the totals, so an analysis failure is never
// reported as a safe batch.
func Aggregate(verdicts []verdict.Verdict) FileSummary {
	var fs FileSummary
	byTab := make(map[int]*TabulatorSummary)
	for _, v := range verdicts {
		ts, ok := byTab[v.Key.Tabulator]
		if !ok {
			ts = &TabulatorSummary{Tabulator: v.Key.Tabulator}
			byTab[v.Key.Tabulator] = ts
		}
		ts.Batches++
		fs.Batches++

		switch v.Status {
		case verdict.Undetermined:
			ts.UndeterminedBatches++
			fs.UndeterminedBatches++
			fs.UndeterminedBallots += v.Records
			continue
		case verdict.Vulnerable:
			ts.VulnerableBatches++
			ts.VulnerableBallots += v.Matched
			fs.VulnerableBatches++
			fs.VulnerableBallots += v.Matched
		}
		ts.Ballots += v.Records
		fs.TotalBallots += v.Records
	}

	fs.Tabulators = make([]TabulatorSummary, 0, len(byTab))
	for _, ts := range byTab {
		fs.Tabulators = append(fs.Tabulators, *ts)
	}
	sort.Slice(fs.Tabulators, func(i, j int) bool {
		return fs.Tabulators[i].Tabulator < fs.Tabulators[j].Tabulator
	})
	return fs
}

// Percent returns floor(100 * part / total); 0 when total is 0.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return 100 * part / total
}

// Percent is the share of determined ballots that are vulnerable.
func (fs FileSummary) Percent() int {
	return Percent(fs.VulnerableBallots, fs.TotalBallots)
}

// String renders the headline estimate.
func (fs FileSummary) String() string {
	return fmt.Sprintf("%d of %d (%d%%) appear to be vulnerable", fs.VulnerableBallots, fs.TotalBallots, fs.Percent())
}

// Percent is the share of the tabulator's determined ballots that are vulnerable.
func (ts TabulatorSummary) Percent() int {
	return Percent(ts.VulnerableBallots, ts.Ballots)
}

func (ts TabulatorSummary) String() string {
	return fmt.Sprintf("tabulator %d: %d of %d batches vulnerable, %d of %d ballots (%d%%)",
		ts.Tabulator, ts.VulnerableBatches, ts.Batches, ts.VulnerableBallots, ts.Ballots, ts.Percent())
}
