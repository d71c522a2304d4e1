package synth

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/compose"
	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/export"
	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/library"
	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/preview"
)

// State is a step of canvas generation.
type State int

// Canvas generation runs Pending → PerCanvas → (PerAsset → PerRepeat...)... →
// Flushed. PerCanvas is re-entered after each sampled asset and PerAsset after
// each repeat.
const (
	Pending State = iota
	PerCanvas
	PerAsset
	PerRepeat
	Flushed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case PerCanvas:
		return "per-canvas"
	case PerAsset:
		return "per-asset"
	case PerRepeat:
		return "per-repeat"
	case Flushed:
		return "flushed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// SkipCounts counts skipped placement attempts by reason.
type SkipCounts struct {
	MissingAsset   int
	EmptyFootprint int
	NoPlacement    int
	Other          int
}

// Total returns the number of skipped attempts.
func (s SkipCounts) Total() int {
	return s.MissingAsset + s.EmptyFootprint + s.NoPlacement + s.Other
}

func (s *SkipCounts) add(o SkipCounts) {
	s.MissingAsset += o.MissingAsset
	s.EmptyFootprint += o.EmptyFootprint
	s.NoPlacement += o.NoPlacement
	s.Other += o.Other
}

// record classifies err and counts it.
func (s *SkipCounts) record(err error) {
	switch {
	case errors.Is(err, compose.ErrNoPlacement):
		s.NoPlacement++
	case errors.Is(err, compose.ErrEmptyFootprint):
		s.EmptyFootprint++
	case errors.Is(err, library.ErrAssetNotFound):
		s.MissingAsset++
	default:
		s.Other++
	}
}

// CanvasResult is the outcome of one canvas.
type CanvasResult struct {
	Split    string
	Index    int
	Attempts int
	Records  []compose.Record
	Skips    SkipCounts

	// Err is set when the canvas could not be written.
	Err error
}

// Driver generates the canvases of every configured split.
type Driver struct {
	cfg     Config
	index   *library.Index
	cache   *library.Cache
	writer  *export.CanvasWriter
	sampler compose.Sampler
}

// NewDriver validates cfg and prepares the shared asset cache.
func NewDriver(cfg Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	index := library.NewIndex(cfg.LibraryRoot)
	cache, err := library.NewCache(index, cfg.CacheSize, cfg.MaskExt)
	if err != nil {
		return nil, err
	}

	return &Driver{
		cfg:     cfg,
		index:   index,
		cache:   cache,
		writer:  export.NewCanvasWriter(cfg.OutputRoot, cfg.JPEGQuality),
		sampler: compose.Sampler{ScaleMin: cfg.ScaleMin, ScaleMax: cfg.ScaleMax},
	}, nil
}

// Run generates every non-excluded split in configuration order and then writes
// the dataset descriptor.
//
// All split directories are listed before any canvas is generated, so a missing
// split aborts the run with library.ErrLibraryNotFound before output is written.
// Cancelling ctx stops the run between canvases; canvases already started are
// completed, and the partial report is returned with the context error.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	type job struct {
		split SplitConfig
		names []string
	}

	var jobs []job
	for _, s := range d.cfg.Splits {
		if d.cfg.Excluded(s.Name) {
			log.Printf("Skipping excluded split %s", s.Name)
			continue
		}
		names, err := d.index.List(s.Name)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job{split: s, names: names})
	}

	report := &Report{}
	var splits []string
	for _, j := range jobs {
		sr, err := d.runSplit(ctx, j.split, j.names)
		// Keys are split-scoped; a finished split's assets are never read again.
		d.cache.Clear()
		report.Splits = append(report.Splits, sr)
		sr.Log()
		if err != nil {
			return report, err
		}
		splits = append(splits, j.split.Name)
	}
	report.Cache = d.cache.Stats()

	desc := export.NewDescriptor(d.cfg.OutputRoot, splits, report.ClassNames(d.cfg.ClassNames))
	if err := export.WriteDescriptor(d.cfg.OutputRoot, desc); err != nil {
		return report, err
	}
	return report, nil
}

// runSplit generates the canvases of one split with a bounded worker pool.
func (d *Driver) runSplit(ctx context.Context, sc SplitConfig, names []string) (SplitReport, error) {
	count := sc.Canvases
	if count <= 0 {
		count = len(names)
	}
	log.Printf("Generating %d canvases for split %s from %d assets (%s)", count, sc.Name, len(names), sc)

	if err := d.writer.Prepare(sc.Name); err != nil {
		return SplitReport{Split: sc.Name}, err
	}
	if d.cfg.Preview {
		if err := os.MkdirAll(preview.Dir(d.cfg.OutputRoot, sc.Name), 0o755); err != nil {
			return SplitReport{Split: sc.Name}, err
		}
	}

	numTasks := d.cfg.Workers
	if count < numTasks {
		numTasks = count
	}
	workQueue := make(chan int, 2*max(numTasks, 1))
	results := make([]*CanvasResult, count)

	var wg sync.WaitGroup
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for k := range workQueue {
				results[k] = d.generate(sc, names, k)
			}
		}()
	}

	// Feed the work queue until done or cancelled.
	var err error
feed:
	for k := 0; k < count; k++ {
		if ctx.Err() != nil {
			err = fmt.Errorf("split %s cancelled after %d of %d canvases: %w", sc.Name, k, count, ctx.Err())
			break
		}
		select {
		case <-ctx.Done():
			err = fmt.Errorf("split %s cancelled after %d of %d canvases: %w", sc.Name, k, count, ctx.Err())
			break feed
		case workQueue <- k:
		}
	}
	close(workQueue)
	wg.Wait()

	var done []CanvasResult
	for _, r := range results {
		if r != nil {
			done = append(done, *r)
		}
	}
	sr := summarize(sc.Name, done)

	if d.cfg.TFRecord && err == nil {
		var written []int
		for _, r := range done {
			if r.Err == nil {
				written = append(written, r.Index)
			}
		}
		if terr := export.WriteTFRecord(d.writer.Layout, sc.Name, written, withDefaultNames(d.cfg.ClassNames, sr.ClassIDs)); terr != nil {
			log.Printf("Failed to write TFRecord for split %s: %v", sc.Name, terr)
		}
	}
	return sr, err
}

// canvasRun is the state of one canvas being generated.
type canvasRun struct {
	split  SplitConfig
	state  State
	k      int
	j      int
	r      int
	rng    *rand.Rand
	canvas *compose.Canvas
	sample []string
	result *CanvasResult
}

// generate runs the canvas state machine for canvas k to completion.
func (d *Driver) generate(sc SplitConfig, names []string, k int) *CanvasResult {
	run := &canvasRun{
		split:  sc,
		state:  Pending,
		k:      k,
		rng:    rand.New(rand.NewSource(canvasSeed(d.cfg.Seed, sc.Name, k))),
		result: &CanvasResult{Split: sc.Name, Index: k, Records: []compose.Record{}},
	}
	for run.state != Flushed {
		d.step(run, names)
	}
	return run.result
}

// step performs the work of entering the next state.
func (d *Driver) step(run *canvasRun, names []string) {
	switch run.state {
	case Pending:
		run.canvas = compose.NewCanvas(d.cfg.CanvasWidth, d.cfg.CanvasHeight)
		run.sample = sample(run.rng, names, run.split.Fraction)
		d.enter(run, PerCanvas)

	case PerCanvas:
		if run.j == len(run.sample) {
			d.flush(run)
			d.enter(run, Flushed)
			return
		}
		run.r = 0
		d.enter(run, PerAsset)

	case PerAsset:
		if run.r == run.split.Repeats {
			run.j++
			d.enter(run, PerCanvas)
			return
		}
		d.enter(run, PerRepeat)

	case PerRepeat:
		run.result.Attempts++
		name := run.sample[run.j]
		if err := d.attempt(run, name); err != nil {
			run.result.Skips.record(err)
			d.debugf("Skipped %s/%s on canvas %s (repeat %d): %v",
				run.split.Name, name, export.CanvasName(run.k), run.r, err)
		}
		run.r++
		d.enter(run, PerAsset)
	}
}

func (d *Driver) enter(run *canvasRun, next State) {
	d.debugf("%s/%s: %s -> %s (asset %d, repeat %d)",
		run.split.Name, export.CanvasName(run.k), run.state, next, run.j, run.r)
	run.state = next
}

// attempt places one transformed copy of the named asset on the canvas.
func (d *Driver) attempt(run *canvasRun, name string) error {
	asset, err := d.cache.Get(run.split.Name, name)
	if err != nil {
		return err
	}
	if asset.ClassID < 0 {
		return fmt.Errorf("%s: %w", asset.Key, compose.ErrEmptyFootprint)
	}

	scale := d.sampler.Scale(run.rng)
	angle := d.sampler.Angle(run.rng)
	sprite, err := compose.Transform(asset.Image, asset.Mask, scale, angle)
	if err != nil {
		return fmt.Errorf("%s: %w", asset.Key, err)
	}

	at, err := compose.FindPlacement(run.rng, run.canvas.Mask, sprite.Mask, d.cfg.Trials, d.cfg.Clearance)
	if err != nil {
		return fmt.Errorf("%s (scale %.2f, angle %.1f): %w", asset.Key, scale, angle, err)
	}

	rec, ok := compose.Encode(run.canvas.Width(), run.canvas.Height(), at, sprite.Mask, asset.ClassID)
	if !ok {
		return fmt.Errorf("%s: %w", asset.Key, compose.ErrEmptyFootprint)
	}
	compose.Paste(run.canvas, at, sprite, asset.ClassID)
	run.result.Records = append(run.result.Records, rec)
	return nil
}

// flush writes the finished canvas and, when enabled, its preview.
func (d *Driver) flush(run *canvasRun) {
	if err := d.writer.Write(run.split.Name, run.k, run.canvas, run.result.Records); err != nil {
		log.Printf("Failed to write canvas %s/%s: %v", run.split.Name, export.CanvasName(run.k), err)
		run.result.Err = err
		return
	}

	if d.cfg.Preview {
		opts := preview.DefaultOptions()
		opts.Names = d.cfg.ClassNames
		path := filepath.Join(preview.Dir(d.cfg.OutputRoot, run.split.Name), export.CanvasName(run.k)+".jpg")
		if err := preview.Save(path, preview.Render(run.canvas, run.result.Records, opts), preview.DefaultJPEGQuality); err != nil {
			log.Printf("Failed to write preview %s: %v", path, err)
		}
	}
}

func (d *Driver) debugf(format string, args ...interface{}) {
	if d.cfg.Debug {
		log.Printf(format, args...)
	}
}

// canvasSeed derives the generator seed of canvas k of a split. The split name
// occupies the high bits so that equal indices of different splits differ.
func canvasSeed(seed int64, split string, k int) int64 {
	h := fnv.New64a()
	h.Write([]byte(split))
	return seed ^ int64(k) ^ int64(h.Sum64()<<32)
}

// sample draws int(fraction*len(names)) names without replacement.
func sample(rng *rand.Rand, names []string, fraction float64) []string {
	n := int(fraction * float64(len(names)))
	perm := rng.Perm(len(names))[:n]
	out := make([]string, n)
	for i, p := range perm {
		out[i] = names[p]
	}
	return out
}

// sortedIDs returns the keys of m in ascending order.
func sortedIDs(m map[int]bool) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
