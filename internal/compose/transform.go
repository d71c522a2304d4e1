package compose

import (
	"fmt"
	"image"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Default scale range. The scale is a divisor: an asset of width w becomes
// int(w/scale) pixels wide.
const (
	DefaultScaleMin = 5.5
	DefaultScaleMax = 6.5
)

// Sprite is an asset after scaling and rotation. Image and Mask share bounds and
// stay co-registered: Mask at (x,y) describes the class of Image at (x,y).
type Sprite struct {
	Image *image.RGBA
	Mask  *image.Gray
}

// Width returns the sprite width in pixels.
func (s *Sprite) Width() int { return s.Mask.Rect.Dx() }

// Height returns the sprite height in pixels.
func (s *Sprite) Height() int { return s.Mask.Rect.Dy() }

// Transform scales img and mask down by scale and rotates both by degrees about
// their centre.
//
// Parameters:
//   - img: The asset photograph.
//   - mask: The asset mask, same dimensions as img.
//   - scale: Divisor applied to both dimensions; must be positive.
//   - degrees: Rotation angle. Positive values rotate counter-clockwise on screen.
//
// Returns:
//   - *Sprite: Image resized with an area-averaging filter and rotated with bilinear
//     sampling; mask resized and rotated with nearest-neighbour sampling so no
//     intermediate class values appear. The output keeps the scaled size, so
//     rotated corners are clipped. Pixels not covered by the rotated source are zero
//     in both outputs.
//   - error: Wraps ErrEmptyFootprint if the scaled size has a zero dimension.
//
// Both outputs are produced with the same rotation matrix.
func Transform(img image.Image, mask *image.Gray, scale, degrees float64) (*Sprite, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("invalid scale factor %v", scale)
	}
	b := img.Bounds()
	if b.Size() != mask.Bounds().Size() {
		return nil, fmt.Errorf("image size %v does not match mask size %v", b.Size(), mask.Bounds().Size())
	}

	w := int(float64(b.Dx()) / scale)
	h := int(float64(b.Dy()) / scale)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d asset scaled by 1/%.3f has no pixels", ErrEmptyFootprint,
			b.Dx(), b.Dy(), scale)
	}

	scaledImg := imaging.Resize(img, w, h, imaging.Box)
	scaledMask := grayFromNRGBA(imaging.Resize(mask, w, h, imaging.NearestNeighbor))

	m := rotation(float64(w/2), float64(h/2), degrees)
	r := image.Rect(0, 0, w, h)

	out := &Sprite{
		Image: image.NewRGBA(r),
		Mask:  image.NewGray(r),
	}
	draw.ApproxBiLinear.Transform(out.Image, m, scaledImg, scaledImg.Bounds(), draw.Src, nil)
	draw.NearestNeighbor.Transform(out.Mask, m, scaledMask, scaledMask.Bounds(), draw.Src, nil)

	return out, nil
}

// rotation returns the source-to-destination matrix rotating by degrees about
// (cx, cy), counter-clockwise as displayed with Y pointing down.
func rotation(cx, cy, degrees float64) f64.Aff3 {
	rad := degrees * math.Pi / 180
	a, b := math.Cos(rad), math.Sin(rad)
	return f64.Aff3{
		a, b, (1-a)*cx - b*cy,
		-b, a, b*cx + (1-a)*cy,
	}
}

// grayFromNRGBA keeps the red channel of a gray-valued NRGBA image.
func grayFromNRGBA(src *image.NRGBA) *image.Gray {
	r := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		srow := src.Pix[src.PixOffset(r.Min.X, r.Min.Y+y):]
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+r.Dx()]
		for x := range drow {
			drow[x] = srow[x*4]
		}
	}
	return dst
}

// Sampler draws the random parameters of one placement attempt.
type Sampler struct {
	ScaleMin float64
	ScaleMax float64
}

// DefaultSampler returns a Sampler over the default scale range.
func DefaultSampler() Sampler {
	return Sampler{ScaleMin: DefaultScaleMin, ScaleMax: DefaultScaleMax}
}

// Scale returns a scale divisor drawn uniformly from [ScaleMin, ScaleMax).
func (s Sampler) Scale(rng *rand.Rand) float64 {
	return s.ScaleMin + rng.Float64()*(s.ScaleMax-s.ScaleMin)
}

// Angle returns a rotation angle drawn uniformly from [0, 360).
func (s Sampler) Angle(rng *rand.Rand) float64 {
	return rng.Float64() * 360
}
