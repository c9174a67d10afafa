package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"dvsorder/internal/config"
	"dvsorder/internal/cvr"
	"dvsorder/internal/metrics"
	"dvsorder/internal/report"
	"dvsorder/internal/run"
)

type analyzeFlags struct {
	config         string
	detector       string
	generator      string
	images         bool
	showUnshuffled bool
	out            string
	html           string
	metrics        string
	progress       bool
	logLevel       string
}

func parseAnalyzeFlags(args []string) (analyzeFlags, []string, error) {
	var f analyzeFlags
	set := flag.NewFlagSet("analyze", flag.ContinueOnError)
	set.SetOutput(io.Discard)
	set.StringVar(&f.config, "config", "", "settings file")
	set.StringVar(&f.detector, "detector", "", "detector override")
	set.StringVar(&f.generator, "generator", "", "generator override")
	set.BoolVar(&f.images, "images", false, "read .zip files as ballot-image archives")
	set.BoolVar(&f.showUnshuffled, "show-unshuffled", false, "print recovered cast order")
	set.StringVar(&f.out, "out", "", "bundle output directory")
	set.StringVar(&f.html, "html", "", "HTML chart file")
	set.StringVar(&f.metrics, "metrics", "", "Prometheus textfile")
	set.BoolVar(&f.progress, "progress", false, "show a progress bar")
	set.StringVar(&f.logLevel, "log-level", "", "log level")
	if err := set.Parse(args); err != nil {
		return f, nil, fmt.Errorf("usage: dvsorder analyze [flags] FILE|DIR...: %w", err)
	}
	if set.NArg() == 0 {
		return f, nil, fmt.Errorf("usage: dvsorder analyze [flags] FILE|DIR...")
	}
	return f, set.Args(), nil
}

// loadSettings reads settings and applies flag overrides. The result has
// been validated.
func loadSettings(f analyzeFlags) (*config.Settings, error) {
	var (
		s   *config.Settings
		err error
	)
	if f.config != "" {
		s, err = config.Load(f.config)
	} else {
		root, werr := os.Getwd()
		if werr != nil {
			return nil, werr
		}
		s, err = config.LoadDefault(root)
	}
	if err != nil {
		return nil, err
	}
	if f.detector != "" {
		s.Detector = f.detector
	}
	if f.generator != "" {
		s.Generator = f.generator
	}
	if f.logLevel != "" {
		s.LogLevel = f.logLevel
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// analyze
// ---------------------------------------------------------------------------

func runAnalyze(args []string) error {
	f, paths, err := parseAnalyzeFlags(args)
	if err != nil {
		return err
	}
	s, err := loadSettings(f)
	if err != nil {
		return err
	}
	level, _ := s.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	files, err := expandInputs(paths, s)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .csv or .zip files found in %s", strings.Join(paths, ", "))
	}

	detector, err := s.NewDetector(logger)
	if err != nil {
		return err
	}
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := []run.Option{
		run.WithWorkers(s.Workers),
		run.WithLogger(logger),
		run.WithMetrics(m),
	}
	var bar *progressBar
	if f.progress {
		bar = startProgress(stop)
		opts = append(opts, run.WithProgress(bar.update))
	}
	runner := run.New(detector, s.Policy(), opts...)

	meta := report.Meta{
		RunID:          uuid.NewString(),
		Generated:      time.Now(),
		Detector:       s.Detector,
		Generator:      s.Generator,
		ShowUnshuffled: f.showUnshuffled,
	}
	color := stdout == io.Writer(os.Stdout) && report.IsTerminal(os.Stdout)

	var (
		analyses []*run.Analysis
		failed   []string
	)
	for _, path := range files {
		if bar != nil {
			bar.file(path)
		}
		exp, err := cvr.Open(path, cvr.Options{Images: f.images})
		if err != nil {
			logger.Error("read export", "path", path, "err", err)
			failed = append(failed, path)
			continue
		}
		a, err := runner.Analyze(ctx, exp)
		if err != nil {
			if bar != nil {
				_ = bar.stop()
			}
			return fmt.Errorf("analyze %s: %w", path, err)
		}
		analyses = append(analyses, a)
	}
	if bar != nil {
		if err := bar.stop(); err != nil {
			logger.Warn("progress display", "err", err)
		}
	}

	for _, a := range analyses {
		if err := report.Text(stdout, a, report.TextOptions{ShowUnshuffled: f.showUnshuffled, Color: color}); err != nil {
			return err
		}
	}
	if err := writeOutputs(f, analyses, meta, m); err != nil {
		return err
	}

	if len(failed) > 0 {
		return fmt.Errorf("could not read %d of %d files: %s", len(failed), len(files), strings.Join(failed, ", "))
	}
	return nil
}

// writeOutputs writes the optional bundle, HTML page and metrics file.
func writeOutputs(f analyzeFlags, analyses []*run.Analysis, meta report.Meta, m *metrics.Metrics) error {
	if f.out != "" {
		for _, a := range analyses {
			dir := f.out
			if len(analyses) > 1 {
				dir = filepath.Join(f.out, bundleName(a.Export.Path))
			}
			bundle, err := report.GenerateBundle(a, meta)
			if err != nil {
				return err
			}
			if err := report.WriteBundle(bundle, dir); err != nil {
				return err
			}
		}
	}
	if f.html != "" {
		out, err := os.Create(f.html)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.html, err)
		}
		if err := report.HTML(out, analyses); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("close %s: %w", f.html, err)
		}
	}
	if f.metrics != "" {
		if err := m.WriteTextfile(f.metrics); err != nil {
			return err
		}
	}
	return nil
}

// bundleName is the per-file bundle directory: the base name with its
// extension and separators replaced.
func bundleName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer(".", "-", " ", "-").Replace(base)
	for strings.Contains(base, "--") {
		base = strings.ReplaceAll(base, "--", "-")
	}
	return strings.Trim(base, "-")
}

// expandInputs resolves files and directories to the export files to read.
// Directory entries are returned sorted; exclude patterns apply to paths
// relative to each directory argument.
func expandInputs(paths []string, s *config.Settings) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, rerr := filepath.Rel(p, path)
			if rerr != nil {
				return rerr
			}
			rel = filepath.ToSlash(rel)
			if rel != "." && s.IsExcluded(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".csv", ".zip":
				found = append(found, path)
			}
			return nil
		})
		if err != nil && !errors.Is(err, filepath.SkipDir) {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}
