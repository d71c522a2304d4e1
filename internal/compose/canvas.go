package compose

import (
	"errors"
	"fmt"
	"image"
)

// ErrEmptyFootprint is returned when a sprite has no foreground pixels to place.
var ErrEmptyFootprint = errors.New("empty footprint")

// ErrNoPlacement is returned when the placement search exhausts its trial budget.
// It matches ErrEmptyFootprint under errors.Is: both end the attempt the same way.
var ErrNoPlacement = fmt.Errorf("%w: no placement satisfies the clearance threshold", ErrEmptyFootprint)

// Canvas is one composite under construction: a color image and a parallel class
// mask of identical dimensions.
type Canvas struct {
	Image *image.RGBA
	Mask  *image.Gray
}

// NewCanvas returns a width x height canvas with black opaque pixels and an all
// background mask.
func NewCanvas(width, height int) *Canvas {
	r := image.Rect(0, 0, width, height)
	img := image.NewRGBA(r)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return &Canvas{
		Image: img,
		Mask:  image.NewGray(r),
	}
}

// Width returns the canvas width in pixels.
func (c *Canvas) Width() int { return c.Mask.Rect.Dx() }

// Height returns the canvas height in pixels.
func (c *Canvas) Height() int { return c.Mask.Rect.Dy() }

// Placement is the canvas position of a sprite's top-left corner.
type Placement struct {
	X int
	Y int
}

// Paste copies the footprint of s onto c at the given placement. Every footprint
// pixel overwrites the canvas color and sets the canvas mask to classID+1; all
// other canvas pixels are left untouched.
//
// The sprite must lie entirely inside the canvas, which FindPlacement guarantees.
func Paste(c *Canvas, at Placement, s *Sprite, classID int) {
	value := uint8(classID + 1)
	w, h := s.Width(), s.Height()

	for y := 0; y < h; y++ {
		mrow := s.Mask.Pix[y*s.Mask.Stride : y*s.Mask.Stride+w]
		srow := s.Image.Pix[y*s.Image.Stride:]
		crow := c.Image.Pix[(at.Y+y)*c.Image.Stride+at.X*4:]
		cmask := c.Mask.Pix[(at.Y+y)*c.Mask.Stride+at.X:]

		for x, v := range mrow {
			if v == 0 {
				continue
			}
			copy(crow[x*4:x*4+3], srow[x*4:x*4+3])
			crow[x*4+3] = 0xff
			cmask[x] = value
		}
	}
}
