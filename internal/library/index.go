package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrLibraryNotFound is returned when the source directory of a split is absent.
var ErrLibraryNotFound = errors.New("asset library not found")

// Index enumerates the assets available per split under a library root.
type Index struct {
	Root string
}

// NewIndex returns an Index rooted at root.
func NewIndex(root string) *Index {
	return &Index{Root: filepath.Clean(root)}
}

// ImageDir returns the directory holding the photographs of split.
func (ix *Index) ImageDir(split string) string {
	return filepath.Join(ix.Root, "images", split)
}

// MaskDir returns the directory holding the masks of split.
func (ix *Index) MaskDir(split string) string {
	return filepath.Join(ix.Root, "masks", split)
}

// List returns the sorted file names of all images in split.
//
// Only regular files and symlinks are returned; subdirectories are ignored.
// A missing or unreadable split directory yields an error wrapping
// ErrLibraryNotFound.
func (ix *Index) List(split string) ([]string, error) {
	dir := ix.ImageDir(split)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: split %q: %v", ErrLibraryNotFound, split, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: split %q: %s is not a directory", ErrLibraryNotFound, split, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: split %q: %v", ErrLibraryNotFound, split, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		mode := e.Type()
		if !mode.IsRegular() && mode&os.ModeSymlink == 0 {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	return names, nil
}
