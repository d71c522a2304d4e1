// Generates synthetic detection training data by compositing labelled asset crops
// onto blank canvases, and pre-splits flat asset libraries into train/val/test.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/export"
	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/synth"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// splitFlags collects repeated -split values.
type splitFlags []synth.SplitConfig

func (s *splitFlags) String() string {
	parts := make([]string, len(*s))
	for i, sc := range *s {
		parts[i] = sc.String()
	}
	return strings.Join(parts, ",")
}

func (s *splitFlags) Set(v string) error {
	sc, err := synth.ParseSplit(v)
	if err != nil {
		return err
	}
	*s = append(*s, sc)
	return nil
}

// listFlag is a comma-separated list of names.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = nil
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			*l = append(*l, p)
		}
	}
	return nil
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-version", "version":
			fmt.Printf("mixgen %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp(os.Stdout)
			return
		}
	}

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if len(os.Args) > 1 && os.Args[1] == "split" {
		os.Exit(runSplit(os.Args[2:]))
	}
	os.Exit(runGenerate(os.Args[1:]))
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "mixgen - synthetic scene compositor for detector training data")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mixgen [options]          Generate composite canvases")
	fmt.Fprintln(w, "  mixgen split [options]    Split a flat image directory into a library")
	fmt.Fprintln(w, "  mixgen version            Print version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'mixgen -h' or 'mixgen split -h' for the options of each command.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintln(w, "  MIXGEN_LOG_LEVEL=debug    Enable debug logging")
}

// parseGenerateFlags maps command line arguments onto a run configuration.
// A -config file replaces the defaults; flags given explicitly override it.
func parseGenerateFlags(args []string) (synth.Config, error) {
	cfg := synth.DefaultConfig()
	if path := configPath(args); path != "" {
		var err error
		if cfg, err = synth.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	fs := flag.NewFlagSet("mixgen", flag.ContinueOnError)

	var splits splitFlags
	exclude := listFlag(cfg.Exclude)
	var classesPath string

	fs.String("config", "", "A YAML run configuration `file` (flags override its values)")
	fs.StringVar(&cfg.LibraryRoot, "library", cfg.LibraryRoot,
		"The asset library `path` containing images/<split> and masks/<split>")
	fs.StringVar(&cfg.OutputRoot, "out", cfg.OutputRoot, "The dataset output `path`")
	fs.Var(&splits, "split",
		"Split policy `name=fraction:repeats[:canvases]`; repeatable (default train=0.2:1, val=0.7:3, test=0.7:3)")
	fs.Var(&exclude, "exclude", "Comma-separated `splits` to skip")
	fs.IntVar(&cfg.CanvasWidth, "width", cfg.CanvasWidth, "The canvas width in `pixels`")
	fs.IntVar(&cfg.CanvasHeight, "height", cfg.CanvasHeight, "The canvas height in `pixels`")
	fs.Float64Var(&cfg.ScaleMin, "scale-min", cfg.ScaleMin, "The smallest downscale `divisor` applied to assets")
	fs.Float64Var(&cfg.ScaleMax, "scale-max", cfg.ScaleMax, "The largest downscale `divisor` applied to assets")
	fs.IntVar(&cfg.Trials, "trials", cfg.Trials, "The placement trial budget per attempt")
	fs.Float64Var(&cfg.Clearance, "clearance", cfg.Clearance,
		"The minimum `fraction` of a footprint that must land on free canvas")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "The random seed")
	fs.IntVar(&cfg.CacheSize, "cache", cfg.CacheSize, "The asset cache capacity in `assets`")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "The number of canvases generated concurrently")
	fs.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality, "The quality to use when encoding JPEGs [1, 100]")
	fs.StringVar(&cfg.MaskExt, "mask-ext", cfg.MaskExt, "The file `extension` of library masks")
	fs.BoolVar(&cfg.Preview, "preview", cfg.Preview, "Also write annotated previews under previews/<split>")
	fs.BoolVar(&cfg.TFRecord, "tfrecord", cfg.TFRecord, "Also write one TFRecord file per split under tfrecord/")
	fs.StringVar(&classesPath, "classes", "", "A data.yaml `file` to read class names from")
	fs.BoolVar(&cfg.Debug, "verbose", cfg.Debug || os.Getenv("MIXGEN_LOG_LEVEL") == "debug", "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if len(splits) > 0 {
		cfg.Splits = splits
	}
	cfg.Exclude = exclude
	if classesPath != "" {
		names, err := export.LoadClassNames(classesPath)
		if err != nil {
			return cfg, err
		}
		cfg.ClassNames = names
	}
	return cfg, cfg.Validate()
}

// configPath returns the value of the -config flag in args, if any.
func configPath(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func runGenerate(args []string) int {
	cfg, err := parseGenerateFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		log.Printf("Invalid arguments: %v", err)
		return 2
	}
	if cfg.Debug {
		log.Printf("mixgen v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	driver, err := synth.NewDriver(cfg)
	if err != nil {
		log.Printf("Error: %v", err)
		return 1
	}
	report, err := driver.Run(ctx)
	if err != nil {
		log.Printf("Error: %v", err)
		return 1
	}

	log.Printf("Done: %s", report)
	if n := report.Failed(); n > 0 {
		log.Printf("%d canvases could not be written", n)
		return 1
	}
	return 0
}

// splitOptions are the arguments of the split command.
type splitOptions struct {
	labels    string
	src       string
	out       string
	fractions export.SplitFractions
	seed      int64
}

func parseSplitFlags(args []string) (splitOptions, error) {
	opts := splitOptions{fractions: export.DefaultSplitFractions(), seed: synth.DefaultSeed}
	fs := flag.NewFlagSet("mixgen split", flag.ContinueOnError)

	fs.StringVar(&opts.labels, "labels", "", "The labels.json `file` listing the images of each class")
	fs.StringVar(&opts.src, "images", "", "The flat image input `directory`")
	fs.StringVar(&opts.out, "library", "data", "The library `path` to create images/<split> under")
	fs.Float64Var(&opts.fractions.Val, "val", opts.fractions.Val, "The per-class validation `fraction`")
	fs.Float64Var(&opts.fractions.Test, "test", opts.fractions.Test, "The per-class test `fraction`")
	fs.Int64Var(&opts.seed, "seed", opts.seed, "The shuffle seed")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	switch {
	case opts.labels == "" || opts.src == "":
		return opts, errors.New("-labels and -images are required")
	case opts.fractions.Val < 0 || opts.fractions.Test < 0 || opts.fractions.Val+opts.fractions.Test >= 1:
		return opts, fmt.Errorf("invalid fractions val=%g test=%g", opts.fractions.Val, opts.fractions.Test)
	}
	return opts, nil
}

func runSplit(args []string) int {
	opts, err := parseSplitFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		log.Printf("Invalid arguments: %v", err)
		return 2
	}

	classes, err := export.LoadLabeledClasses(opts.labels)
	if err != nil {
		log.Printf("Error: %v", err)
		return 1
	}
	counts, err := export.SplitLibrary(classes, opts.src, opts.out, opts.fractions, opts.seed)
	if err != nil {
		log.Printf("Error: %v", err)
		return 1
	}
	log.Printf("Split %d classes: train %d, val %d, test %d images", len(classes), counts["train"], counts["val"], counts["test"])
	return 0
}
