// Package synth drives dataset synthesis: for every configured split it generates
// canvases by sampling assets from the library, transforming and placing them,
// and flushing each canvas as an image, a mask and a label file.
//
// # Configuration
//
// A run is described by an immutable Config value. Split policy (how much of the
// library is sampled per canvas, how often each sampled asset is attempted, how
// many canvases are produced) lives in SplitConfig entries.
//
// # Reproducibility
//
// Every canvas draws from its own generator seeded from the run seed, the split
// name and the canvas index. The output therefore does not depend on the number
// of workers or on scheduling order.
//
// # Error Handling
//
// A missing split directory aborts the run with library.ErrLibraryNotFound.
// Missing assets, empty footprints and failed placements skip a single attempt
// and are counted. A canvas that cannot be written is recorded in the Report and
// the run continues.
package synth
