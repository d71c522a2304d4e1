package compose

import (
	"fmt"
	"image"
	"math/rand"
)

// Placement search defaults.
const (
	DefaultTrials    = 10
	DefaultClearance = 0.5
)

// FindPlacement searches for a canvas position of a sprite with the given mask.
//
// Each of up to trials attempts draws a top-left position uniformly among those
// that keep the whole sprite inside the canvas. A position is accepted when the
// fraction of footprint pixels landing on background (canvas mask value 0) is at
// least threshold. The first accepted position is returned.
//
// Returns an error wrapping ErrEmptyFootprint when the mask has no foreground,
// without drawing from rng, and ErrNoPlacement when the sprite is larger than the
// canvas or every trial is rejected.
func FindPlacement(rng *rand.Rand, canvasMask, mask *image.Gray, trials int, threshold float64) (Placement, error) {
	total := Footprint(mask)
	if total == 0 {
		return Placement{}, ErrEmptyFootprint
	}

	cw, ch := canvasMask.Rect.Dx(), canvasMask.Rect.Dy()
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	if w > cw || h > ch {
		return Placement{}, fmt.Errorf("%w: %dx%d sprite exceeds %dx%d canvas", ErrNoPlacement, w, h, cw, ch)
	}

	for i := 0; i < trials; i++ {
		at := Placement{X: rng.Intn(cw - w + 1), Y: rng.Intn(ch - h + 1)}
		free, _ := Clearance(canvasMask, mask, at)
		if float64(free)/float64(total) >= threshold {
			return at, nil
		}
	}

	return Placement{}, fmt.Errorf("%w after %d trials", ErrNoPlacement, trials)
}

// Footprint returns the number of non-zero pixels of mask.
func Footprint(mask *image.Gray) int {
	n := 0
	w := mask.Rect.Dx()
	for y := 0; y < mask.Rect.Dy(); y++ {
		for _, v := range mask.Pix[y*mask.Stride : y*mask.Stride+w] {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

// Clearance counts the footprint pixels of mask that would land on canvas
// background if placed at at. It returns that count and the footprint size.
func Clearance(canvasMask, mask *image.Gray, at Placement) (free, total int) {
	w := mask.Rect.Dx()
	for y := 0; y < mask.Rect.Dy(); y++ {
		mrow := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		crow := canvasMask.Pix[(at.Y+y)*canvasMask.Stride+at.X:]
		for x, v := range mrow {
			if v == 0 {
				continue
			}
			total++
			if crow[x] == 0 {
				free++
			}
		}
	}
	return free, total
}
