package synth

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"

	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/compose"
	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/export"
	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/library"
)

// Canvas and cache defaults.
const (
	DefaultCanvasWidth  = 2252
	DefaultCanvasHeight = 4000
	DefaultSeed         = 1
	DefaultCacheSize    = 128
)

// SplitConfig is the synthesis policy of one split.
type SplitConfig struct {
	// Name is the split directory name, e.g. "train".
	Name string

	// Fraction of the split's library sampled (without replacement) per canvas.
	Fraction float64

	// Repeats is the number of independent placement attempts per sampled asset.
	Repeats int

	// Canvases is the number of canvases to generate. Zero or less means one
	// canvas per library asset.
	Canvases int
}

// String renders the split in the form accepted by ParseSplit.
func (s SplitConfig) String() string {
	out := fmt.Sprintf("%s=%g:%d", s.Name, s.Fraction, s.Repeats)
	if s.Canvases > 0 {
		out += ":" + strconv.Itoa(s.Canvases)
	}
	return out
}

// DefaultSplits returns the standard train/val/test policy: sparse training
// canvases with a single attempt per asset, and dense evaluation canvases with
// three attempts per asset.
func DefaultSplits() []SplitConfig {
	return []SplitConfig{
		{Name: "train", Fraction: 0.2, Repeats: 1},
		{Name: "val", Fraction: 0.7, Repeats: 3},
		{Name: "test", Fraction: 0.7, Repeats: 3},
	}
}

// Config is the complete, immutable description of a synthesis run.
type Config struct {
	LibraryRoot string
	OutputRoot  string
	Splits      []SplitConfig

	// Exclude names splits that are skipped entirely.
	Exclude []string

	CanvasWidth  int
	CanvasHeight int

	ScaleMin float64
	ScaleMax float64

	Trials    int
	Clearance float64

	Seed      int64
	CacheSize int
	Workers   int

	JPEGQuality int
	MaskExt     string

	// Preview writes a QA overlay per canvas under previews/<split>.
	Preview bool

	// TFRecord writes one TFRecord file per split under tfrecord/.
	TFRecord bool

	// ClassNames maps class ids to names for data.yaml, previews and TFRecords.
	ClassNames map[int]string

	Debug bool
}

// DefaultConfig returns a Config with every tunable at its default.
func DefaultConfig() Config {
	return Config{
		LibraryRoot:  "data",
		OutputRoot:   "mixed",
		Splits:       DefaultSplits(),
		CanvasWidth:  DefaultCanvasWidth,
		CanvasHeight: DefaultCanvasHeight,
		ScaleMin:     compose.DefaultScaleMin,
		ScaleMax:     compose.DefaultScaleMax,
		Trials:       compose.DefaultTrials,
		Clearance:    compose.DefaultClearance,
		Seed:         DefaultSeed,
		CacheSize:    DefaultCacheSize,
		Workers:      runtime.NumCPU(),
		JPEGQuality:  export.DefaultJPEGQuality,
		MaskExt:      library.DefaultMaskExt,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.LibraryRoot == "":
		return errors.New("library root is required")
	case c.OutputRoot == "":
		return errors.New("output root is required")
	case len(c.Splits) == 0:
		return errors.New("at least one split is required")
	case c.CanvasWidth <= 0 || c.CanvasHeight <= 0:
		return fmt.Errorf("invalid canvas size %dx%d", c.CanvasWidth, c.CanvasHeight)
	case !finite(c.ScaleMin) || !finite(c.ScaleMax) || !(c.ScaleMin >= 1 && c.ScaleMax >= c.ScaleMin):
		return fmt.Errorf("invalid scale range [%g, %g]: need 1 <= min <= max", c.ScaleMin, c.ScaleMax)
	case c.Trials <= 0:
		return fmt.Errorf("invalid trial budget %d", c.Trials)
	case !(c.Clearance >= 0 && c.Clearance <= 1):
		return fmt.Errorf("invalid clearance %g: must be within [0, 1]", c.Clearance)
	case c.CacheSize <= 0:
		return fmt.Errorf("invalid cache size %d", c.CacheSize)
	case c.Workers <= 0:
		return fmt.Errorf("invalid worker count %d", c.Workers)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("invalid JPEG quality %d", c.JPEGQuality)
	case !strings.HasPrefix(c.MaskExt, "."):
		return fmt.Errorf("invalid mask extension %q", c.MaskExt)
	}

	seen := make(map[string]bool, len(c.Splits))
	for _, s := range c.Splits {
		if s.Name == "" || strings.ContainsAny(s.Name, `/\`) {
			return fmt.Errorf("invalid split name %q", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("split %q configured twice", s.Name)
		}
		seen[s.Name] = true
		if !(s.Fraction >= 0 && s.Fraction <= 1) {
			return fmt.Errorf("split %s: fraction %g outside [0, 1]", s.Name, s.Fraction)
		}
		if s.Repeats < 0 {
			return fmt.Errorf("split %s: negative repeat count %d", s.Name, s.Repeats)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Excluded reports whether the named split is skipped.
func (c Config) Excluded(split string) bool {
	for _, e := range c.Exclude {
		if e == split {
			return true
		}
	}
	return false
}

// ParseSplit parses "name=fraction:repeats[:canvases]".
func ParseSplit(s string) (SplitConfig, error) {
	name, policy, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return SplitConfig{}, fmt.Errorf("invalid split %q: want name=fraction:repeats[:canvases]", s)
	}

	parts := strings.Split(policy, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return SplitConfig{}, fmt.Errorf("invalid split %q: want name=fraction:repeats[:canvases]", s)
	}

	sc := SplitConfig{Name: name}
	var err error
	if sc.Fraction, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return SplitConfig{}, fmt.Errorf("invalid split %q: fraction: %w", s, err)
	}
	if !finite(sc.Fraction) {
		return SplitConfig{}, fmt.Errorf("invalid split %q: fraction must be a finite number", s)
	}
	if sc.Repeats, err = strconv.Atoi(parts[1]); err != nil {
		return SplitConfig{}, fmt.Errorf("invalid split %q: repeats: %w", s, err)
	}
	if len(parts) == 3 {
		if sc.Canvases, err = strconv.Atoi(parts[2]); err != nil {
			return SplitConfig{}, fmt.Errorf("invalid split %q: canvases: %w", s, err)
		}
	}
	return sc, nil
}
