// config.go - dvsorder settings loaded from .dvsorder/settings.yaml.
//
// Settings select the detector and generator, bound the seed space and the
// per-batch search budget, and set the vulnerability threshold. Exclude
// patterns filter the files picked up when analyze is pointed at a
// directory.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dvsorder/internal/detect"
	"dvsorder/internal/plugin"
	"dvsorder/internal/prng"
	"dvsorder/internal/search"
	"dvsorder/internal/verdict"
)

// ErrInvalid is returned by Validate; the run must not start.
var ErrInvalid = errors.New("config: invalid settings")

// Dir and File locate the default settings file relative to a root.
const (
	Dir  = ".dvsorder"
	File = "settings.yaml"
)

// Settings holds dvsorder configuration.
type Settings struct {
	// Detector is one of detect.Names().
	Detector string `yaml:"detector"`
	// Generator is one of prng.Names().
	Generator string `yaml:"generator"`
	// Threshold is the fraction of a batch the best candidate must explain.
	Threshold     float64       `yaml:"threshold"`
	Seeds         Seeds         `yaml:"seeds"`
	Budget        search.Budget `yaml:"budget"`
	Workers       int           `yaml:"workers"`
	MaxSpanFactor int           `yaml:"max_span_factor"`
	LogLevel      string        `yaml:"log_level"`
	// Exclude is a list of glob patterns for files analyze should skip.
	// Example: ["archive/**", "*.bak.zip"]
	Exclude []string `yaml:"exclude,omitempty"`
}

// Seeds bounds the seed space: either a fixed [Min, Max] range or a
// window around a clock reading.
type Seeds struct {
	Min *int64 `yaml:"min,omitempty"`
	Max *int64 `yaml:"max,omitempty"`
	// Around is the default instant for batches without a timestamp.
	Around *time.Time    `yaml:"around,omitempty"`
	Window time.Duration `yaml:"window,omitempty"`
	// Unit is "seconds" (default) or "milliseconds".
	Unit string `yaml:"unit,omitempty"`
}

// DefaultSeedMax is the upper end of the seed range used when a settings
// file does not bound the seeds.
const DefaultSeedMax = 100_000

// Defaults returns the settings used when no file is present.
func Defaults() *Settings {
	s := base()
	s.Seeds = defaultSeeds()
	return s
}

func base() *Settings {
	return &Settings{
		Detector:      "shuffle",
		Generator:     "dotnet",
		Threshold:     verdict.DefaultThreshold,
		Budget:        search.Budget{MaxCandidates: search.DefaultMaxCandidates},
		MaxSpanFactor: search.DefaultMaxSpanFactor,
		LogLevel:      "info",
	}
}

func defaultSeeds() Seeds {
	lo, hi := int64(0), int64(DefaultSeedMax)
	return Seeds{Min: &lo, Max: &hi}
}

func (s Seeds) isZero() bool {
	return s.Min == nil && s.Max == nil && s.Around == nil && s.Window == 0 && s.Unit == ""
}

// Path returns the default settings path under root.
func Path(root string) string {
	return filepath.Join(root, Dir, File)
}

// Load reads the settings file at path over the defaults. The default
// seed range applies only when the file has no seeds section.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	s := base()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	if s.Seeds.isZero() {
		s.Seeds = defaultSeeds()
	}
	return s, nil
}

// LoadDefault reads .dvsorder/settings.yaml relative to root.
// Returns Defaults() (not an error) if the file does not exist.
func LoadDefault(root string) (*Settings, error) {
	path := Path(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Defaults(), nil
	}
	return Load(path)
}

// Save writes s to path, creating parent directories.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate reports every problem with s in one ErrInvalid error.
func (s *Settings) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !contains(detect.Names(), s.Detector) {
		add("unknown detector %q (want one of %s)", s.Detector, strings.Join(detect.Names(), ", "))
	}
	if _, err := prng.Lookup(s.Generator); err != nil {
		add("unknown generator %q (want one of %s)", s.Generator, strings.Join(prng.Names(), ", "))
	}
	if !(s.Threshold > 0 && s.Threshold <= 1) {
		add("threshold %v outside (0, 1]", s.Threshold)
	}

	fixed := s.Seeds.Min != nil || s.Seeds.Max != nil
	windowed := s.Seeds.Around != nil || s.Seeds.Window != 0
	switch {
	case fixed && windowed:
		add("seeds: min/max and around/window are mutually exclusive")
	case fixed && (s.Seeds.Min == nil || s.Seeds.Max == nil):
		add("seeds: both min and max are required")
	case fixed && *s.Seeds.Min > *s.Seeds.Max:
		add("seeds: min %d greater than max %d", *s.Seeds.Min, *s.Seeds.Max)
	case !fixed && !windowed && s.Detector != "sequence":
		add("seeds: the %s detector needs min/max or a window", s.Detector)
	}
	if s.Seeds.Window < 0 {
		add("seeds: negative window %s", s.Seeds.Window)
	}
	if _, err := s.unit(); err != nil {
		add("seeds: %v", err)
	}

	if s.Budget.Timeout < 0 {
		add("budget: negative timeout %s", s.Budget.Timeout)
	}
	if s.Workers < 0 {
		add("workers: negative value %d", s.Workers)
	}
	if s.MaxSpanFactor < 1 {
		add("max_span_factor: must be at least 1, got %d", s.MaxSpanFactor)
	}
	if _, err := s.Level(); err != nil {
		add("log_level: %v", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func (s *Settings) unit() (time.Duration, error) {
	switch s.Seeds.Unit {
	case "", "seconds", "s":
		return time.Second, nil
	case "milliseconds", "ms":
		return time.Millisecond, nil
	default:
		return 0, fmt.Errorf("unknown unit %q", s.Seeds.Unit)
	}
}

// ---------------------------------------------------------------------------
// Builders
// ---------------------------------------------------------------------------

// Level parses LogLevel; empty means info.
func (s *Settings) Level() (slog.Level, error) {
	var l slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, err
	}
	return l, nil
}

// Policy returns the classification policy.
func (s *Settings) Policy() verdict.Policy {
	return verdict.Policy{Threshold: s.Threshold}
}

// Bounds returns the seed bounds strategy, or nil when none is configured.
func (s *Settings) Bounds() (search.Bounds, error) {
	if s.Seeds.Min != nil && s.Seeds.Max != nil {
		return search.Fixed{Min: *s.Seeds.Min, Max: *s.Seeds.Max}, nil
	}
	if s.Seeds.Around == nil && s.Seeds.Window == 0 {
		return nil, nil
	}
	unit, err := s.unit()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return search.Timestamp{Around: s.Seeds.Around, Window: s.Seeds.Window, Unit: unit}, nil
}

// NewDetector builds the configured detector. logger may be nil.
func (s *Settings) NewDetector(logger *slog.Logger) (plugin.Detector, error) {
	model, err := prng.Lookup(s.Generator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	bounds, err := s.Bounds()
	if err != nil {
		return nil, err
	}
	opts := []search.Option{
		search.WithBudget(s.Budget),
		search.WithMaxSpanFactor(s.MaxSpanFactor),
	}
	if logger != nil {
		opts = append(opts, search.WithLogger(logger))
	}
	shuffle := detect.NewShuffle(search.New(model, opts...), bounds)
	seq := detect.NewSequence(s.MaxSpanFactor)

	switch s.Detector {
	case "shuffle":
		return shuffle, nil
	case "sequence":
		return seq, nil
	case "auto":
		return detect.NewAuto(seq, shuffle), nil
	default:
		return nil, fmt.Errorf("%w: unknown detector %q", ErrInvalid, s.Detector)
	}
}

// ---------------------------------------------------------------------------
// Exclude patterns
// ---------------------------------------------------------------------------

// IsExcluded reports whether relPath (forward-slash, relative to the
// analyzed directory) matches any exclude rule. Safe to call on a nil
// *Settings receiver.
func (s *Settings) IsExcluded(relPath string) bool {
	if s == nil {
		return false
	}
	for _, rule := range s.Exclude {
		if matchPattern(strings.TrimPrefix(rule, "./"), relPath) {
			return true
		}
	}
	return false
}

// matchPattern reports whether path matches an exclude glob pattern.
//
// "prefix/**" matches the prefix directory itself and every path beneath it.
// All other patterns use filepath.Match semantics (single * does not cross /).
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	matched, _ := filepath.Match(pattern, path)
	return matched
}
