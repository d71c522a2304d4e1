package export

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/compose"
)

// ErrIncompleteCanvasWrite is returned when any artifact of a canvas could not be
// written. None of the canvas's artifacts are left behind in that case.
var ErrIncompleteCanvasWrite = errors.New("incomplete canvas write")

// DefaultJPEGQuality is the quality used for composite photographs.
const DefaultJPEGQuality = 95

// Artifact file extensions.
const (
	ImageExt = ".jpg"
	MaskExt  = ".png"
	LabelExt = ".txt"
)

// CanvasName returns the zero-padded base name of canvas index.
func CanvasName(index int) string {
	return fmt.Sprintf("mix_%04d", index)
}

// Layout resolves output paths below a dataset root.
type Layout struct {
	Root string
}

// ImageDir returns the composite photograph directory of split.
func (l Layout) ImageDir(split string) string { return filepath.Join(l.Root, "images", split) }

// MaskDir returns the composite mask directory of split.
func (l Layout) MaskDir(split string) string { return filepath.Join(l.Root, "masks", split) }

// LabelDir returns the label directory of split.
func (l Layout) LabelDir(split string) string { return filepath.Join(l.Root, "labels", split) }

// Paths returns the three artifact paths of canvas index in split.
func (l Layout) Paths(split string, index int) (img, mask, label string) {
	name := CanvasName(index)
	return filepath.Join(l.ImageDir(split), name+ImageExt),
		filepath.Join(l.MaskDir(split), name+MaskExt),
		filepath.Join(l.LabelDir(split), name+LabelExt)
}

// CanvasWriter flushes finished canvases to a dataset root.
type CanvasWriter struct {
	Layout      Layout
	JPEGQuality int
}

// NewCanvasWriter returns a writer below root. A quality outside [1, 100] selects
// DefaultJPEGQuality.
func NewCanvasWriter(root string, jpegQuality int) *CanvasWriter {
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}
	return &CanvasWriter{Layout: Layout{Root: filepath.Clean(root)}, JPEGQuality: jpegQuality}
}

// Prepare creates the output directories of split.
func (w *CanvasWriter) Prepare(split string) error {
	for _, dir := range []string{w.Layout.ImageDir(split), w.Layout.MaskDir(split), w.Layout.LabelDir(split)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Write stores the composite photograph, mask and labels of canvas index.
//
// All three artifacts are encoded before anything touches the disk. They are then
// written to temporary files, any artifacts of an earlier run at the same paths
// are removed, and the new files are renamed into place. On failure every file
// created for this canvas is removed and the returned error wraps
// ErrIncompleteCanvasWrite.
func (w *CanvasWriter) Write(split string, index int, c *compose.Canvas, records []compose.Record) error {
	var imgBuf, maskBuf bytes.Buffer
	if err := imaging.Encode(&imgBuf, c.Image, imaging.JPEG, imaging.JPEGQuality(w.JPEGQuality)); err != nil {
		return fmt.Errorf("%w: %s/%s: failed to encode image: %v", ErrIncompleteCanvasWrite, split, CanvasName(index), err)
	}
	if err := imaging.Encode(&maskBuf, c.Mask, imaging.PNG); err != nil {
		return fmt.Errorf("%w: %s/%s: failed to encode mask: %v", ErrIncompleteCanvasWrite, split, CanvasName(index), err)
	}

	imgPath, maskPath, labelPath := w.Layout.Paths(split, index)
	artifacts := []struct {
		path string
		data []byte
	}{
		{imgPath, imgBuf.Bytes()},
		{maskPath, maskBuf.Bytes()},
		{labelPath, compose.FormatRecords(records)},
	}

	var written []string
	cleanup := func() {
		for _, p := range written {
			_ = os.Remove(p)
		}
	}

	for _, a := range artifacts {
		tmp := a.path + ".tmp"
		written = append(written, tmp)
		if err := os.WriteFile(tmp, a.data, 0o644); err != nil {
			cleanup()
			return fmt.Errorf("%w: %s/%s: %v", ErrIncompleteCanvasWrite, split, CanvasName(index), err)
		}
	}

	// Drop artifacts of an earlier run so old and new files never mix.
	for _, a := range artifacts {
		if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
			cleanup()
			return fmt.Errorf("%w: %s/%s: %v", ErrIncompleteCanvasWrite, split, CanvasName(index), err)
		}
	}

	for _, a := range artifacts {
		if err := os.Rename(a.path+".tmp", a.path); err != nil {
			cleanup()
			return fmt.Errorf("%w: %s/%s: %v", ErrIncompleteCanvasWrite, split, CanvasName(index), err)
		}
		written = append(written, a.path)
	}

	return nil
}
