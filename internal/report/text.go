package report

// text.go - the console report: one line per batch and a summary line.

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"dvsorder/internal/cvr"
	"dvsorder/internal/run"
	"dvsorder/internal/verdict"
)

// TextOptions controls the console report.
type TextOptions struct {
	// ShowUnshuffled prints the recovered cast order of vulnerable batches.
	ShowUnshuffled bool
	// Color enables terminal styling.
	Color bool
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type palette struct {
	vulnerable, safe, undetermined, heading func(...string) string
}

func plain(strs ...string) string { return strings.Join(strs, " ") }

func newPalette(w io.Writer, color bool) palette {
	if !color {
		return palette{plain, plain, plain, plain}
	}
	r := lipgloss.NewRenderer(w)
	return palette{
		vulnerable:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Render,
		safe:         r.NewStyle().Foreground(lipgloss.Color("10")).Render,
		undetermined: r.NewStyle().Foreground(lipgloss.Color("11")).Render,
		heading:      r.NewStyle().Bold(true).Render,
	}
}

// Text writes the console report for a.
func Text(w io.Writer, a *run.Analysis, opts TextOptions) error {
	p := newPalette(w, opts.Color)
	var b strings.Builder

	exp := a.Export
	b.WriteString(p.heading(exp.Path) + "\n")
	if exp.Description != "" || exp.Version != "" {
		fmt.Fprintf(&b, "description: %s, version: %s\n", exp.Description, exp.Version)
	}
	if len(exp.TabulatorModels) > 0 {
		fmt.Fprintf(&b, "%d of %d tabulators are vulnerable models\n",
			vulnerableModels(exp.TabulatorModels), len(exp.TabulatorModels))
	}
	if exp.Skipped > 0 {
		fmt.Fprintf(&b, "%d records skipped during extraction\n", exp.Skipped)
	}

	for _, v := range a.Verdicts {
		b.WriteString(batchLine(v, p) + "\n")
		if opts.ShowUnshuffled && v.Status == verdict.Vulnerable {
			b.WriteString("unshuffled ballots: " + castOrder(v) + "\n")
		}
	}

	s := a.Summary
	b.WriteString(p.heading("approximately "+s.String()) + "\n")
	if s.UndeterminedBatches > 0 {
		line := fmt.Sprintf("%d batches (%d ballots) could not be analyzed", s.UndeterminedBatches, s.UndeterminedBallots)
		b.WriteString(p.undetermined(line) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// batchLine renders one verdict.
func batchLine(v verdict.Verdict, p palette) string {
	switch v.Status {
	case verdict.Vulnerable:
		detail := fmt.Sprintf("%d ballots, missing %d", v.Records, v.Missing)
		if v.Seed != nil {
			detail += fmt.Sprintf(", %s seed %d", v.Model, *v.Seed)
		}
		return p.vulnerable(fmt.Sprintf("%s appears vulnerable (%s)", v.Key, detail))
	case verdict.NotVulnerable:
		return p.safe(fmt.Sprintf("%s appears safe (%d ballots)", v.Key, v.Records))
	default:
		return p.undetermined(fmt.Sprintf("%s undetermined (%d ballots): %s", v.Key, v.Records, v.Reason))
	}
}

func castOrder(v verdict.Verdict) string {
	entries := v.CastOrder()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = fmt.Sprint(e.RecordID)
	}
	return "[" + strings.Join(ids, " ") + "]"
}

func vulnerableModels(models map[int]string) int {
	var n int
	for _, m := range models {
		if m == cvr.ModelImageCastPrecinct || m == cvr.ModelImageCastEvolution {
			n++
		}
	}
	return n
}

// tabulatorIDs returns the tabulator ids present in verdicts, ascending.
func tabulatorIDs(verdicts []verdict.Verdict) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, v := range verdicts {
		if !seen[v.Key.Tabulator] {
			seen[v.Key.Tabulator] = true
			ids = append(ids, v.Key.Tabulator)
		}
	}
	sort.Ints(ids)
	return ids
}
