package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"dvsorder/internal/config"
)

// helpText calls the help function and returns the output as a string.
func helpText() string {
	var sb strings.Builder
	printUsage(&sb)
	return sb.String()
}

// longHelpText returns the long help for a named command.
func longHelpText(name string) string {
	var sb strings.Builder
	printCommandHelp(&sb, name)
	return sb.String()
}

// captureStdout redirects command output for the duration of the test.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestHelpContainsAllCommands verifies the help listing is derived from the
// commands slice.
func TestHelpContainsAllCommands(t *testing.T) {
	help := helpText()
	for _, cmd := range commands {
		if !strings.Contains(help, cmd.name) {
			t.Errorf("help output missing command %q", cmd.name)
		}
		if !strings.Contains(help, cmd.short) {
			t.Errorf("help output missing short description for %q", cmd.short)
		}
	}
	if !strings.Contains(help, "Usage:") || !strings.Contains(help, "dvsorder") {
		t.Error("help output missing usage header")
	}
}

func TestLongHelpForKnownCommands(t *testing.T) {
	for _, cmd := range commands {
		t.Run(cmd.name, func(t *testing.T) {
			out := longHelpText(cmd.name)
			if !strings.Contains(out, cmd.usage) {
				t.Errorf("long help for %q missing usage line %q\ngot: %s", cmd.name, cmd.usage, out)
			}
		})
	}
}

func TestLongHelpUnknownCommand(t *testing.T) {
	out := longHelpText("no-such-command")
	if !strings.Contains(out, "unknown") {
		t.Errorf("expected unknown-command message, got: %s", out)
	}
}

func TestDispatchHelp(t *testing.T) {
	captureStdout(t)
	for _, args := range [][]string{{}, {"--help"}, {"-h"}, {"help"}, {"help", "analyze"}} {
		if err := dispatch(args); err != nil {
			t.Errorf("dispatch(%q) returned error: %v", args, err)
		}
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	err := dispatch([]string{"no-such-command-xyz-abc"})
	if err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

// TestSubcommandBadArgsGivesUsage verifies each subcommand validates its own
// arguments.
func TestSubcommandBadArgsGivesUsage(t *testing.T) {
	for _, args := range [][]string{{"analyze"}, {"shuffle"}, {"shuffle", "--length", "x"}} {
		err := dispatch(args)
		if err == nil {
			t.Errorf("dispatch(%q) should return error", args)
			continue
		}
		if !strings.Contains(err.Error(), "usage:") {
			t.Errorf("dispatch(%q) = %v, want usage error", args, err)
		}
	}
}

func TestCommandsHaveRequiredFields(t *testing.T) {
	if len(commands) == 0 {
		t.Fatal("commands slice is empty")
	}
	for _, cmd := range commands {
		if cmd.name == "" || cmd.short == "" || cmd.usage == "" || cmd.run == nil {
			t.Errorf("command %q is incomplete", cmd.name)
		}
	}
}

// ---------------------------------------------------------------------------
// shuffle
// ---------------------------------------------------------------------------

func TestShuffleCommand(t *testing.T) {
	out := captureStdout(t)
	if err := dispatch([]string{"shuffle", "--generator", "dotnet", "--seed", "42", "--length", "5", "--base", "100"}); err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	want := "permutation: 2 1 4 0 3\nrecord ids:  102 101 104 100 103\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestShuffleCommandRejectsSeedOutsideRange(t *testing.T) {
	captureStdout(t)
	if err := dispatch([]string{"shuffle", "--generator", "msvc", "--seed", "-1", "--length", "3"}); err == nil {
		t.Error("expected error for negative msvc seed")
	}
	if err := dispatch([]string{"shuffle", "--generator", "xorshift", "--length", "3"}); err == nil {
		t.Error("expected error for unknown generator")
	}
}

// ---------------------------------------------------------------------------
// analyze
// ---------------------------------------------------------------------------

// twoBatchCSV holds batch 1 shuffled by dotnet seed 42 and batch 2 by seed 9000.
const twoBatchCSV = `General Election,5.10.50.85
,,,,Mayor
,,,,Alice
CvrNumber,TabulatorNum,BatchId,RecordId
1,1,1,102
2,1,1,101
3,1,1,104
4,1,1,100
5,1,1,103
6,1,2,200
7,1,2,203
8,1,2,201
9,1,2,204
10,1,2,202
`

const narrowSettings = `detector: shuffle
generator: dotnet
seeds:
  min: 40
  max: 44
log_level: error
`

func TestAnalyzeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "export.csv")
	cfgPath := filepath.Join(dir, "settings.yaml")
	writeFile(t, csvPath, twoBatchCSV)
	writeFile(t, cfgPath, narrowSettings)

	outDir := filepath.Join(dir, "bundle")
	htmlPath := filepath.Join(dir, "report.html")
	metricsPath := filepath.Join(dir, "dvsorder.prom")

	out := captureStdout(t)
	err := dispatch([]string{"analyze",
		"--config", cfgPath,
		"--show-unshuffled",
		"--out", outDir,
		"--html", htmlPath,
		"--metrics", metricsPath,
		csvPath,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"tabulator 1 batch 1 appears vulnerable (5 ballots, missing 0, dotnet seed 42)",
		"unshuffled ballots: [100 101 102 103 104]",
		"tabulator 1 batch 2 appears safe (5 ballots)",
		"approximately 5 of 10 (50%) appear to be vulnerable",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	for _, p := range []string{"index.md", "tabulators/1.md", "verdicts.yaml"} {
		if _, err := os.Stat(filepath.Join(outDir, filepath.FromSlash(p))); err != nil {
			t.Errorf("bundle missing %s: %v", p, err)
		}
	}
	if data, err := os.ReadFile(htmlPath); err != nil || !strings.Contains(string(data), "export.csv") {
		t.Errorf("html page not written: %v", err)
	}
	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics not written: %v", err)
	}
	if !strings.Contains(string(data), `dvsorder_batches_total{status="vulnerable"} 1`) {
		t.Errorf("metrics missing vulnerable batch count:\n%s", data)
	}
}

func TestAnalyzeMultipleFilesWriteSeparateBundles(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "settings.yaml")
	writeFile(t, cfgPath, narrowSettings)
	writeFile(t, filepath.Join(dir, "in", "county a.csv"), twoBatchCSV)
	writeFile(t, filepath.Join(dir, "in", "county.b.csv"), twoBatchCSV)

	captureStdout(t)
	outDir := filepath.Join(dir, "out")
	if err := dispatch([]string{"analyze", "--config", cfgPath, "--out", outDir, filepath.Join(dir, "in")}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, sub := range []string{"county-a", "county-b"} {
		if _, err := os.Stat(filepath.Join(outDir, sub, "index.md")); err != nil {
			t.Errorf("bundle %s missing: %v", sub, err)
		}
	}
}

func TestAnalyzeInvalidSettings(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "settings.yaml")
	writeFile(t, cfgPath, "threshold: 2\n")
	writeFile(t, filepath.Join(dir, "export.csv"), twoBatchCSV)

	out := captureStdout(t)
	err := dispatch([]string{"analyze", "--config", cfgPath, filepath.Join(dir, "export.csv")})
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("no report expected for invalid settings, got:\n%s", out)
	}
}

func TestAnalyzeUnreadableFileIsReported(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "settings.yaml")
	writeFile(t, cfgPath, narrowSettings)
	writeFile(t, filepath.Join(dir, "good.csv"), twoBatchCSV)
	writeFile(t, filepath.Join(dir, "bad.zip"), "not a zip")

	out := captureStdout(t)
	err := dispatch([]string{"analyze", "--config", cfgPath, filepath.Join(dir, "good.csv"), filepath.Join(dir, "bad.zip")})
	if err == nil || !strings.Contains(err.Error(), "bad.zip") {
		t.Fatalf("expected error naming bad.zip, got %v", err)
	}
	if !strings.Contains(out.String(), "approximately 5 of 10 (50%)") {
		t.Errorf("good file should still be reported:\n%s", out)
	}
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"b.zip", "a.csv", "notes.txt", "archive/old.csv", "sub/c.CSV"} {
		writeFile(t, filepath.Join(dir, filepath.FromSlash(p)), "x")
	}
	s := &config.Settings{Exclude: []string{"archive/**"}}

	got, err := expandInputs([]string{dir}, s)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.csv"),
		filepath.Join(dir, "b.zip"),
		filepath.Join(dir, "sub", "c.CSV"),
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expandInputs = %v, want %v", got, want)
	}

	if _, err := expandInputs([]string{filepath.Join(dir, "missing.csv")}, s); err == nil {
		t.Error("expected error for missing input")
	}
}

func TestBundleName(t *testing.T) {
	tests := map[string]string{
		"/data/County A.zip":        "County-A",
		"cvr.2020.general.csv":      "cvr-2020-general",
		"../exports/-odd-name-.csv": "odd-name",
	}
	for in, want := range tests {
		if got := bundleName(in); got != want {
			t.Errorf("bundleName(%q) = %q, want %q", in, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func TestApplyAnswers(t *testing.T) {
	s := config.Defaults()
	err := applyAnswers(s, map[string]string{
		"detector":  "auto",
		"generator": "",
		"seeds.min": "5",
		"seeds.max": " 50 ",
		"threshold": "0.9",
	})
	if err != nil {
		t.Fatalf("applyAnswers: %v", err)
	}
	if s.Detector != "auto" || s.Generator != "dotnet" || *s.Seeds.Min != 5 || *s.Seeds.Max != 50 || s.Threshold != 0.9 {
		t.Errorf("unexpected settings: %+v", s)
	}
	if err := applyAnswers(s, map[string]string{"seeds.min": "many"}); err == nil {
		t.Error("expected error for non-numeric seed")
	}
}

func TestPromptModelAdvancesOnEnter(t *testing.T) {
	questions := initQuestions(config.Defaults())
	var m tea.Model = newPromptModel(questions)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("msvc")})
	for range questions {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	}
	final := m.(promptModel)
	if !final.done {
		t.Fatal("prompt should be done after answering every question")
	}
	if got := final.answers()["detector"]; got != "msvc" {
		t.Errorf("first answer = %q, want typed text", got)
	}
	if got := final.answers()["generator"]; got != "" {
		t.Errorf("unanswered question = %q, want empty", got)
	}
}
