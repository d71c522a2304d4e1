// Package preview renders quality-control overlays of generated canvases: each
// placed object is tinted with its class color, outlined by its label box and
// tagged with its class.
package preview

import (
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strconv"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/compose"
)

// Defaults for Options.
const (
	DefaultMaxSide     = 1024
	DefaultTint        = 0.45
	DefaultJPEGQuality = 85
)

// Options control preview rendering.
type Options struct {
	// MaxSide is the length of the longer preview side. Larger canvases are
	// downscaled; smaller ones keep their size.
	MaxSide int

	// Tint is the opacity (0-1) of the class color over object pixels.
	Tint float64

	// Names maps class ids to display names. Unnamed classes show their id.
	Names map[int]string
}

// DefaultOptions returns the default rendering options.
func DefaultOptions() Options {
	return Options{MaxSide: DefaultMaxSide, Tint: DefaultTint}
}

// ClassColor returns a stable, well separated color for a class id. Hues step by
// the golden angle so neighbouring ids differ strongly.
func ClassColor(classID int) color.RGBA {
	h := math.Mod(float64(classID)*137.508, 360)
	r, g, b := colorful.Hsv(h, 0.85, 0.95).RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Render draws the overlay for canvas c and its label records.
func Render(c *compose.Canvas, records []compose.Record, opts Options) *image.RGBA {
	cw, ch := c.Width(), c.Height()

	overlay := image.NewRGBA(c.Image.Bounds())
	copy(overlay.Pix, c.Image.Pix)
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			v := c.Mask.Pix[y*c.Mask.Stride+x]
			if v == 0 {
				continue
			}
			overlay.SetRGBA(x, y, ClassColor(int(v)-1))
		}
	}
	out := blend.Opacity(c.Image, overlay, opts.Tint)

	scale := 1.0
	if opts.MaxSide > 0 && max(cw, ch) > opts.MaxSide {
		scale = float64(opts.MaxSide) / float64(max(cw, ch))
		out = transform.Resize(out, max(1, int(float64(cw)*scale)), max(1, int(float64(ch)*scale)), transform.Linear)
	}

	for _, r := range records {
		x1, y1, x2, y2 := r.Bounds(cw, ch)
		box := image.Rect(int(x1*scale), int(y1*scale), int(math.Ceil(x2*scale)), int(math.Ceil(y2*scale)))
		col := ClassColor(r.ClassID)
		drawBox(out, box, col, 2)
		drawTag(out, box.Min, label(r.ClassID, opts.Names), col)
	}

	return out
}

// Dir returns the preview directory of split below a dataset root.
func Dir(root, split string) string {
	return filepath.Join(root, "previews", split)
}

// Save encodes img as JPEG at path.
func Save(path string, img image.Image, quality int) error {
	return imgio.Save(path, img, imgio.JPEGEncoder(quality))
}

func label(classID int, names map[int]string) string {
	if n, ok := names[classID]; ok {
		return n
	}
	return strconv.Itoa(classID)
}

// drawBox outlines r with lines of the given thickness, clipped to img.
func drawBox(img *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	b := img.Bounds()
	for t := 0; t < thickness; t++ {
		for x := r.Min.X; x <= r.Max.X; x++ {
			setClipped(img, b, x, r.Min.Y+t, c)
			setClipped(img, b, x, r.Max.Y-t, c)
		}
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			setClipped(img, b, r.Min.X+t, y, c)
			setClipped(img, b, r.Max.X-t, y, c)
		}
	}
}

// drawTag writes text on a filled background just above the top-left corner of a
// box, or just inside it when there is no room above.
func drawTag(img *image.RGBA, at image.Point, text string, bg color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	top := at.Y - height
	if top < 0 {
		top = at.Y
	}
	b := img.Bounds()
	for y := top; y < top+height; y++ {
		for x := at.X; x < at.X+width+2; x++ {
			setClipped(img, b, x, y, bg)
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(at.X+1, top+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

func setClipped(img *image.RGBA, b image.Rectangle, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(b) {
		img.SetRGBA(x, y, c)
	}
}
