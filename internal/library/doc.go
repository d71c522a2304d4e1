// Package library provides read access to the single-object asset library that
// synthetic scenes are composed from.
//
// An asset library is laid out per split:
//
//	<root>/images/<split>/<name>.<ext>   photograph of one object
//	<root>/masks/<split>/<name>.png      grayscale class mask for that photograph
//
// A mask pixel value v > 0 marks the object and encodes its class as v-1; zero is
// background. Image and mask of an asset always have identical dimensions.
//
// # Ordering
//
// Index.List returns file names in lexicographic order. Directory enumeration order
// is not relied upon anywhere, so sampling from a listing is reproducible for a
// given seed.
//
// # Thread Safety
//
// Cache is safe for concurrent use. Assets returned by the cache are shared and
// must be treated as read-only.
package library
