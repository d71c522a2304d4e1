// Package compose implements the per-canvas steps of synthetic scene generation:
// geometric transform of an asset, randomized placement search under a clearance
// constraint, masked paste onto the canvas, and derivation of the normalized
// detection label of each pasted object.
//
// # Coordinate System
//
// All images in this package have their origin at (0,0). X increases rightward and
// Y downward. A Placement is the canvas position of a sprite's top-left pixel.
//
// # Footprint
//
// The footprint of a sprite is the set of its mask pixels with a non-zero value.
// Only footprint pixels are ever written to a canvas, so objects pasted earlier stay
// visible wherever a later sprite's bounding rectangle has background.
//
// # Randomness
//
// Functions that sample take an explicit *rand.Rand. Nothing here reads the global
// generator, so a seeded caller gets reproducible results.
package compose
