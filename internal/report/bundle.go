package report

// bundle.go - the analysis bundle: a markdown vault plus machine-readable
// verdicts for one export.
//
// Bundle layout:
//   index.md               - run metadata (frontmatter) and summary
//   tabulators/<id>.md     - one per tabulator, batch table and cast orders
//   verdicts.yaml          - every verdict

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dvsorder/internal/run"
	"dvsorder/internal/summary"
	"dvsorder/internal/verdict"
)

// Meta describes the run that produced a bundle.
type Meta struct {
	RunID     string
	Generated time.Time
	Detector  string
	Generator string
	// ShowUnshuffled adds recovered cast orders to tabulator pages.
	ShowUnshuffled bool
}

// Bundle holds pre-generated page content (path → content).
// Paths are relative to the output directory, using forward slashes.
type Bundle struct {
	pages map[string]string
}

// Paths returns the page paths in sorted order.
func (b *Bundle) Paths() []string {
	paths := make([]string, 0, len(b.pages))
	for p := range b.pages {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Page returns the content at path.
func (b *Bundle) Page(path string) (string, bool) {
	s, ok := b.pages[path]
	return s, ok
}

// GenerateBundle builds all pages for a. No files are written.
func GenerateBundle(a *run.Analysis, meta Meta) (*Bundle, error) {
	pages := make(map[string]string)

	index, err := buildIndexPage(a, meta)
	if err != nil {
		return nil, err
	}
	pages["index.md"] = index

	byTab := make(map[int][]verdict.Verdict)
	for _, v := range a.Verdicts {
		byTab[v.Key.Tabulator] = append(byTab[v.Key.Tabulator], v)
	}
	for _, ts := range a.Summary.Tabulators {
		page, err := buildTabulatorPage(ts, a.Export.TabulatorModels[ts.Tabulator], byTab[ts.Tabulator], meta)
		if err != nil {
			return nil, err
		}
		pages[fmt.Sprintf("tabulators/%d.md", ts.Tabulator)] = page
	}

	doc := verdictsDoc{RunID: meta.RunID, Source: a.Export.Path, Summary: a.Summary, Verdicts: a.Verdicts}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal verdicts: %w", err)
	}
	pages["verdicts.yaml"] = string(data)

	return &Bundle{pages: pages}, nil
}

// WriteBundle writes all pages in bundle to outputDir.
// Pages are written in sorted path order; tabulators/ always exists.
func WriteBundle(bundle *Bundle, outputDir string) error {
	if err := os.MkdirAll(filepath.Join(outputDir, "tabulators"), 0o755); err != nil {
		return fmt.Errorf("mkdir tabulators: %w", err)
	}
	for _, p := range bundle.Paths() {
		abs := filepath.Join(outputDir, filepath.FromSlash(p))
		if err := writeFile(abs, bundle.pages[p]); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Page builders
// ---------------------------------------------------------------------------

type indexFrontmatter struct {
	RunID             string   `yaml:"run_id"`
	Generated         string   `yaml:"generated"`
	Source            string   `yaml:"source"`
	Description       string   `yaml:"description,omitempty"`
	Version           string   `yaml:"version,omitempty"`
	Detector          string   `yaml:"detector,omitempty"`
	Generator         string   `yaml:"generator,omitempty"`
	VulnerableBallots int      `yaml:"vulnerable_ballots"`
	TotalBallots      int      `yaml:"total_ballots"`
	Percent           int      `yaml:"percent"`
	Tags              []string `yaml:"tags"`
}

type tabulatorFrontmatter struct {
	Tabulator int      `yaml:"tabulator"`
	Model     string   `yaml:"model,omitempty"`
	Tags      []string `yaml:"tags"`
}

type verdictsDoc struct {
	RunID    string              `yaml:"run_id"`
	Source   string              `yaml:"source"`
	Summary  summary.FileSummary `yaml:"summary"`
	Verdicts []verdict.Verdict   `yaml:"verdicts"`
}

// buildIndexPage builds index.md - run metadata and tabulator links.
func buildIndexPage(a *run.Analysis, meta Meta) (string, error) {
	s := a.Summary
	fm := indexFrontmatter{
		RunID:             meta.RunID,
		Generated:         meta.Generated.UTC().Format(time.RFC3339),
		Source:            a.Export.Path,
		Description:       a.Export.Description,
		Version:           a.Export.Version,
		Detector:          meta.Detector,
		Generator:         meta.Generator,
		VulnerableBallots: s.VulnerableBallots,
		TotalBallots:      s.TotalBallots,
		Percent:           s.Percent(),
		Tags:              []string{"dvsorder/index"},
	}

	var b strings.Builder
	b.WriteString("# " + filepath.Base(a.Export.Path) + "\n\n")
	b.WriteString("Approximately " + s.String() + ".\n\n")
	fmt.Fprintf(&b, "- **Batches**: %d (%d vulnerable, %d undetermined)\n",
		s.Batches, s.VulnerableBatches, s.UndeterminedBatches)
	if s.UndeterminedBallots > 0 {
		fmt.Fprintf(&b, "- **Ballots not analyzed**: %d\n", s.UndeterminedBallots)
	}
	if a.Export.Skipped > 0 {
		fmt.Fprintf(&b, "- **Records skipped**: %d\n", a.Export.Skipped)
	}

	b.WriteString("\n## Tabulators\n\n")
	for _, ts := range s.Tabulators {
		fmt.Fprintf(&b, "- [[tabulators/%d|Tabulator %d]]: %d of %d ballots (%d%%)\n",
			ts.Tabulator, ts.Tabulator, ts.VulnerableBallots, ts.Ballots, ts.Percent())
	}
	return withFrontmatter(fm, b.String())
}

// buildTabulatorPage builds tabulators/<id>.md. Batches are listed in
// ascending batch order.
func buildTabulatorPage(ts summary.TabulatorSummary, model string, verdicts []verdict.Verdict, meta Meta) (string, error) {
	sorted := make([]verdict.Verdict, len(verdicts))
	copy(sorted, verdicts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key.Batch < sorted[j].Key.Batch })

	tags := []string{"dvsorder/tabulator", statusTag(ts)}
	sort.Strings(tags)
	fm := tabulatorFrontmatter{Tabulator: ts.Tabulator, Model: model, Tags: tags}

	var b strings.Builder
	fmt.Fprintf(&b, "# Tabulator %d\n\n", ts.Tabulator)
	b.WriteString(ts.String() + "\n\n")
	b.WriteString("| Batch | Status | Ballots | Matched | Missing | Seed | Notes |\n")
	b.WriteString("|-------|--------|---------|---------|---------|------|-------|\n")
	for _, v := range sorted {
		seed := ""
		if v.Seed != nil {
			seed = fmt.Sprint(*v.Seed)
		}
		fmt.Fprintf(&b, "| %d | %s | %d | %d | %d | %s | %s |\n",
			v.Key.Batch, v.Status, v.Records, v.Matched, v.Missing, seed, notes(v))
	}

	if meta.ShowUnshuffled {
		var wrote bool
		for _, v := range sorted {
			if v.Status != verdict.Vulnerable {
				continue
			}
			if !wrote {
				b.WriteString("\n## Cast Order\n")
				wrote = true
			}
			fmt.Fprintf(&b, "\n### Batch %d\n\n", v.Key.Batch)
			for _, e := range v.CastOrder() {
				fmt.Fprintf(&b, "%d. %d\n", e.Original+1, e.RecordID)
			}
		}
	}
	return withFrontmatter(fm, b.String())
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// statusTag summarizes a tabulator for its tags.
func statusTag(ts summary.TabulatorSummary) string {
	switch {
	case ts.VulnerableBatches > 0:
		return "vulnerable"
	case ts.UndeterminedBatches == ts.Batches:
		return "undetermined"
	default:
		return "safe"
	}
}

// notes renders data-quality observations and the reason for a verdict.
func notes(v verdict.Verdict) string {
	var parts []string
	if v.Duplicates > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicate ids", v.Duplicates))
	}
	if v.Gaps > 0 {
		parts = append(parts, fmt.Sprintf("%d missing ids", v.Gaps))
	}
	if v.Ties > 0 {
		parts = append(parts, fmt.Sprintf("%d tied candidates", v.Ties))
	}
	if v.Reason != "" {
		parts = append(parts, v.Reason)
	}
	return strings.ReplaceAll(strings.Join(parts, "; "), "|", "\\|")
}

// withFrontmatter marshals v as YAML frontmatter between --- delimiters
// and appends body.
func withFrontmatter(v any, body string) (string, error) {
	fm, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("frontmatter: marshal: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	return buf.String(), nil
}

// writeFile writes content to path, creating parent directories as needed.
func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
