package library

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ErrAssetNotFound is returned when an image or its mask is missing, unreadable or
// inconsistent with its companion.
var ErrAssetNotFound = errors.New("asset not found")

// DefaultMaskExt is the file extension of mask files.
const DefaultMaskExt = ".png"

// Key identifies one asset for the lifetime of a generation run.
type Key struct {
	Split string
	Name  string
}

// String returns the key as "split/name".
func (k Key) String() string {
	return k.Split + "/" + k.Name
}

// Asset is a decoded (image, mask) pair for one object crop.
type Asset struct {
	Key Key

	// Image is the photograph, origin at (0,0).
	Image *image.NRGBA

	// Mask has the same bounds as Image. Values are class_id+1, 0 is background.
	Mask *image.Gray

	// ClassID is the first positive mask value in row-major order minus one,
	// or -1 if the mask has no foreground.
	ClassID int
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Len    int
}

// Cache provides bounded, thread-safe caching of decoded assets.
//
// Assets are decoded on first access and kept until they become the least recently
// used entry of a full cache. Eviction only drops the cache's reference; an asset
// already handed out stays valid, and a later Get for the same key decodes the
// files again into pixel-identical data.
//
// # Example Usage
//
//	cache, err := library.NewCache(library.NewIndex("basic_dataset"), 128, library.DefaultMaskExt)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	asset, err := cache.Get("val", "goblin_01.jpg")
type Cache struct {
	index   *Index
	maskExt string
	entries *lru.Cache[Key, *Asset]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache creates a cache holding at most capacity assets of the library
// described by index. maskExt is the mask file extension including the dot; an
// empty string selects DefaultMaskExt.
func NewCache(index *Index, capacity int, maskExt string) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	if maskExt == "" {
		maskExt = DefaultMaskExt
	}
	if !strings.HasPrefix(maskExt, ".") {
		maskExt = "." + maskExt
	}

	entries, err := lru.New[Key, *Asset](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset cache: %w", err)
	}

	return &Cache{
		index:   index,
		maskExt: maskExt,
		entries: entries,
	}, nil
}

// Get retrieves an asset from the cache or decodes it from disk if not cached.
//
// Parameters:
//   - split: The split the asset belongs to (e.g. "train").
//   - name: The image file name as returned by Index.List.
//
// Returns:
//   - *Asset: The decoded asset. It is shared with other callers and must not be
//     modified.
//   - error: Non-nil, wrapping ErrAssetNotFound, if the image or mask cannot be
//     read or decoded, or if their dimensions differ.
//
// The mask file name is the image name with its extension replaced by the
// cache's mask extension.
func (c *Cache) Get(split, name string) (*Asset, error) {
	key := Key{Split: split, Name: name}
	if a, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return a, nil
	}
	c.misses.Add(1)

	a, err := c.load(key)
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, a)

	return a, nil
}

// Clear removes all assets from the cache.
func (c *Cache) Clear() {
	c.entries.Purge()
}

// Contains reports whether the asset is currently resident, without touching its
// recency.
func (c *Cache) Contains(split, name string) bool {
	return c.entries.Contains(Key{Split: split, Name: name})
}

// Stats returns hit and miss counts and the number of resident assets.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Len:    c.entries.Len(),
	}
}

// MaskPath returns the mask path of the image name in split.
func (c *Cache) MaskPath(split, name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(c.index.MaskDir(split), base+c.maskExt)
}

func (c *Cache) load(key Key) (*Asset, error) {
	imgPath := filepath.Join(c.index.ImageDir(key.Split), key.Name)
	maskPath := c.MaskPath(key.Split, key.Name)

	// Photographs are stored as shot; the masks were drawn on the upright image.
	img, err := imaging.Open(imgPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetNotFound, key, err)
	}

	mask, err := loadMask(maskPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetNotFound, key, err)
	}

	nrgba := imaging.Clone(img)
	if nrgba.Bounds().Size() != mask.Bounds().Size() {
		return nil, fmt.Errorf("%w: %s: image is %v but mask is %v", ErrAssetNotFound, key,
			nrgba.Bounds().Size(), mask.Bounds().Size())
	}

	return &Asset{
		Key:     key,
		Image:   nrgba,
		Mask:    mask,
		ClassID: ClassOf(mask),
	}, nil
}

// loadMask decodes the mask at path into a single-channel image with origin (0,0).
func loadMask(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mask: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask: %w", err)
	}

	return ToGray(src), nil
}

// ToGray converts img to an 8-bit grayscale image with origin (0,0). Gray input is
// copied verbatim so class values survive; other models go through color.GrayModel.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], row[:b.Dx()])
		}
		return out
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Pix[y*out.Stride+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
		}
	}
	return out
}

// ClassOf returns the class encoded in mask: the first positive value in row-major
// order minus one. It returns -1 for a mask without foreground.
func ClassOf(mask *image.Gray) int {
	b := mask.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := mask.Pix[mask.PixOffset(b.Min.X, y) : mask.PixOffset(b.Min.X, y)+b.Dx()]
		for _, v := range row {
			if v > 0 {
				return int(v) - 1
			}
		}
	}
	return -1
}
