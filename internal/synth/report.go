package synth

import (
	"fmt"
	"log"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/export"
	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/library"
)

// HighSkipRate is the skip rate above which a split summary is logged as a warning.
const HighSkipRate = 0.5

// CanvasFailure names a canvas that could not be written.
type CanvasFailure struct {
	Name string
	Err  error
}

// SplitReport summarises one generated split.
type SplitReport struct {
	Split    string
	Canvases int
	Written  int
	Attempts int
	Placed   int
	Skips    SkipCounts
	Failures []CanvasFailure

	// ObjectsMean and ObjectsStdDev describe the number of objects per written
	// canvas.
	ObjectsMean   float64
	ObjectsStdDev float64

	// ClassIDs lists the placed classes in ascending order.
	ClassIDs []int
}

// SkipRate returns the fraction of attempts that were skipped.
func (s SplitReport) SkipRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Skips.Total()) / float64(s.Attempts)
}

// Log writes the split summary to the standard logger.
func (s SplitReport) Log() {
	log.Printf("Split %s: %d/%d canvases written, %d/%d attempts placed, objects per canvas %.2f±%.2f",
		s.Split, s.Written, s.Canvases, s.Placed, s.Attempts, s.ObjectsMean, s.ObjectsStdDev)
	if s.Skips.Total() > 0 {
		log.Printf("Split %s: skipped %d attempts (missing asset %d, empty footprint %d, no placement %d, other %d)",
			s.Split, s.Skips.Total(), s.Skips.MissingAsset, s.Skips.EmptyFootprint, s.Skips.NoPlacement, s.Skips.Other)
	}
	if rate := s.SkipRate(); rate > HighSkipRate {
		log.Printf("WARNING: split %s skipped %.0f%% of placement attempts", s.Split, 100*rate)
	}
	for _, f := range s.Failures {
		log.Printf("Split %s: canvas %s failed: %v", s.Split, f.Name, f.Err)
	}
}

// Report summarises a run.
type Report struct {
	Splits []SplitReport
	Cache  library.CacheStats
}

// Failed returns the number of canvases that could not be written.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Splits {
		n += len(s.Failures)
	}
	return n
}

// ClassNames returns base extended with a numeric name for every placed class
// base does not name.
func (r *Report) ClassNames(base map[int]string) map[int]string {
	var ids []int
	for _, s := range r.Splits {
		ids = append(ids, s.ClassIDs...)
	}
	return withDefaultNames(base, ids)
}

func withDefaultNames(base map[int]string, ids []int) map[int]string {
	names := make(map[int]string, len(base)+len(ids))
	for id, n := range base {
		names[id] = n
	}
	for _, id := range ids {
		if _, ok := names[id]; !ok {
			names[id] = strconv.Itoa(id)
		}
	}
	return names
}

// summarize aggregates canvas results, ordered by canvas index.
func summarize(split string, results []CanvasResult) SplitReport {
	sr := SplitReport{Split: split, Canvases: len(results)}
	seen := map[int]bool{}
	var objects []float64

	for _, r := range results {
		sr.Attempts += r.Attempts
		sr.Skips.add(r.Skips)
		if r.Err != nil {
			sr.Failures = append(sr.Failures, CanvasFailure{Name: export.CanvasName(r.Index), Err: r.Err})
			continue
		}
		sr.Written++
		sr.Placed += len(r.Records)
		objects = append(objects, float64(len(r.Records)))
		for _, rec := range r.Records {
			seen[rec.ClassID] = true
		}
	}

	switch len(objects) {
	case 0:
	case 1:
		sr.ObjectsMean = objects[0]
	default:
		sr.ObjectsMean, sr.ObjectsStdDev = stat.MeanStdDev(objects, nil)
	}
	sr.ClassIDs = sortedIDs(seen)
	return sr
}

// String renders a one-line run summary.
func (r *Report) String() string {
	canvases, written, placed := 0, 0, 0
	for _, s := range r.Splits {
		canvases += s.Canvases
		written += s.Written
		placed += s.Placed
	}
	return fmt.Sprintf("%d splits, %d/%d canvases written, %d objects placed, cache %d hits/%d misses",
		len(r.Splits), written, canvases, placed, r.Cache.Hits, r.Cache.Misses)
}
