// Package export writes generated datasets to disk.
//
// Every canvas produces three artifacts that share a base name:
//
//	<root>/images/<split>/mix_0007.jpg   composite photograph
//	<root>/masks/<split>/mix_0007.png    composite class mask
//	<root>/labels/<split>/mix_0007.txt   one "class cx cy w h" line per object
//
// CanvasWriter encodes all three in memory, writes them under temporary names and
// renames them into place only when every write succeeded, so a canvas is either
// complete or absent. The package also writes the dataset descriptor consumed by
// the detector trainer, optional TFRecord shards, and can distribute a flat image
// collection into per-split asset directories.
package export
