package library

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// writePNG encodes img to path, creating parent directories.
func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
}

// writeAsset writes a width x height image filled with c and a mask whose
// central quarter carries classID+1. A negative classID writes an empty mask.
func writeAsset(t *testing.T, root, split, name string, width, height, classID int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	mask := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
			if classID >= 0 && x >= width/4 && x < 3*width/4 && y >= height/4 && y < 3*height/4 {
				mask.SetGray(x, y, color.Gray{Y: uint8(classID + 1)})
			}
		}
	}
	writePNG(t, filepath.Join(root, "images", split, name), img)
	base := name[:len(name)-len(filepath.Ext(name))]
	writePNG(t, filepath.Join(root, "masks", split, base+".png"), mask)
}

func TestIndex_List_Sorted(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"c.png", "a.png", "b.png"} {
		writeAsset(t, root, "train", name, 8, 8, 0, color.White)
	}
	if err := os.Mkdir(filepath.Join(root, "images", "train", "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	names, err := NewIndex(root).List("train")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	want := []string{"a.png", "b.png", "c.png"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d]: got %s, want %s", i, names[i], want[i])
		}
	}
}

func TestIndex_List_MissingSplit(t *testing.T) {
	_, err := NewIndex(t.TempDir()).List("val")
	if !errors.Is(err, ErrLibraryNotFound) {
		t.Errorf("got %v, want ErrLibraryNotFound", err)
	}
}

func TestIndex_List_Empty(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "images", "test"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	names, err := NewIndex(root).List("test")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no names, got %v", names)
	}
}

func TestNewCache_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -3} {
		if _, err := NewCache(NewIndex(t.TempDir()), capacity, ""); err == nil {
			t.Errorf("NewCache(%d) should fail", capacity)
		}
	}
}

func TestCache_MaskPath(t *testing.T) {
	tests := []struct {
		maskExt string
		name    string
		want    string
	}{
		{"", "goblin.jpg", "goblin.png"},
		{".png", "ooze.JPEG", "ooze.png"},
		{"bmp", "a.b.jpg", "a.b.bmp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, err := NewCache(NewIndex("/lib"), 4, tt.maskExt)
			if err != nil {
				t.Fatalf("NewCache failed: %v", err)
			}
			got := cache.MaskPath("val", tt.name)
			want := filepath.Join("/lib", "masks", "val", tt.want)
			if got != want {
				t.Errorf("got %s, want %s", got, want)
			}
		})
	}
}

func TestCache_Get(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "train", "bandit.png", 40, 20, 6, color.RGBA{200, 10, 10, 255})

	cache, err := NewCache(NewIndex(root), 4, "")
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}

	a1, err := cache.Get("train", "bandit.png")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a1.Image.Bounds().Dx() != 40 || a1.Image.Bounds().Dy() != 20 {
		t.Errorf("unexpected image size %v", a1.Image.Bounds())
	}
	if a1.Mask.Bounds() != a1.Image.Bounds() {
		t.Errorf("mask bounds %v differ from image bounds %v", a1.Mask.Bounds(), a1.Image.Bounds())
	}
	if a1.ClassID != 6 {
		t.Errorf("ClassID: got %d, want 6", a1.ClassID)
	}

	a2, err := cache.Get("train", "bandit.png")
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if a1 != a2 {
		t.Error("second Get did not return cached asset")
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Len != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCache_Get_MissingFiles(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "val", "imp.png", 10, 10, 1, color.White)
	if err := os.Remove(filepath.Join(root, "masks", "val", "imp.png")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	cache, err := NewCache(NewIndex(root), 4, "")
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}

	tests := []struct {
		name  string
		split string
		file  string
	}{
		{"missing mask", "val", "imp.png"},
		{"missing image", "val", "nothing.png"},
		{"missing split", "test", "imp.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cache.Get(tt.split, tt.file)
			if !errors.Is(err, ErrAssetNotFound) {
				t.Errorf("got %v, want ErrAssetNotFound", err)
			}
		})
	}
	if cache.Stats().Len != 0 {
		t.Error("failed loads must not be cached")
	}
}

func TestCache_Get_InvalidImage(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "val", "imp.png", 10, 10, 1, color.White)
	if err := os.WriteFile(filepath.Join(root, "images", "val", "imp.png"), []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cache, _ := NewCache(NewIndex(root), 4, "")
	if _, err := cache.Get("val", "imp.png"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("got %v, want ErrAssetNotFound", err)
	}
}

func TestCache_Get_DimensionMismatch(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "val", "imp.png", 10, 10, 1, color.White)
	writePNG(t, filepath.Join(root, "masks", "val", "imp.png"), image.NewGray(image.Rect(0, 0, 11, 10)))

	cache, _ := NewCache(NewIndex(root), 4, "")
	if _, err := cache.Get("val", "imp.png"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("got %v, want ErrAssetNotFound", err)
	}
}

func TestCache_LRUEviction(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writeAsset(t, root, "train", name, 8, 8, 0, color.White)
	}

	cache, err := NewCache(NewIndex(root), 2, "")
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}

	for _, name := range []string{"a.png", "b.png", "a.png", "c.png"} {
		if _, err := cache.Get("train", name); err != nil {
			t.Fatalf("Get(%s) failed: %v", name, err)
		}
	}

	if !cache.Contains("train", "a.png") {
		t.Error("recently used a.png was evicted")
	}
	if cache.Contains("train", "b.png") {
		t.Error("least recently used b.png was not evicted")
	}
	if !cache.Contains("train", "c.png") {
		t.Error("c.png should be resident")
	}
	if cache.Stats().Len != 2 {
		t.Errorf("Len: got %d, want 2", cache.Stats().Len)
	}
}

func TestCache_IdempotentAcrossEviction(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "train", "a.png", 16, 12, 3, color.RGBA{10, 120, 240, 255})
	writeAsset(t, root, "train", "b.png", 16, 12, 4, color.RGBA{240, 120, 10, 255})

	cache, _ := NewCache(NewIndex(root), 1, "")

	first, err := cache.Get("train", "a.png")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := cache.Get("train", "b.png"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cache.Contains("train", "a.png") {
		t.Fatal("a.png should have been evicted")
	}

	second, err := cache.Get("train", "a.png")
	if err != nil {
		t.Fatalf("Get after eviction failed: %v", err)
	}
	if !bytes.Equal(first.Image.Pix, second.Image.Pix) {
		t.Error("image pixels differ after eviction")
	}
	if !bytes.Equal(first.Mask.Pix, second.Mask.Pix) {
		t.Error("mask pixels differ after eviction")
	}
}

func TestCache_Clear(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "train", "a.png", 8, 8, 0, color.White)
	writeAsset(t, root, "train", "b.png", 8, 8, 0, color.White)

	cache, _ := NewCache(NewIndex(root), 4, "")
	_, _ = cache.Get("train", "a.png")
	_, _ = cache.Get("train", "b.png")

	cache.Clear()
	if cache.Stats().Len != 0 || cache.Contains("train", "a.png") {
		t.Errorf("Clear left %d assets", cache.Stats().Len)
	}
	if s := cache.Stats(); s.Misses != 2 {
		t.Errorf("Clear reset the counters: %+v", s)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	root := t.TempDir()
	names := []string{"a.png", "b.png", "c.png"}
	for _, name := range names {
		writeAsset(t, root, "val", name, 8, 8, 2, color.White)
	}
	cache, _ := NewCache(NewIndex(root), 2, "")

	var wg sync.WaitGroup
	errs := make(chan error, 90)
	for i := 0; i < 90; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := cache.Get("val", names[i%len(names)]); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Get error: %v", err)
	}
}

func TestClassOf(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 4, 3))
	if got := ClassOf(mask); got != -1 {
		t.Errorf("empty mask: got %d, want -1", got)
	}

	mask.SetGray(3, 1, color.Gray{Y: 9})
	mask.SetGray(0, 2, color.Gray{Y: 2})
	if got := ClassOf(mask); got != 8 {
		t.Errorf("got %d, want 8", got)
	}
}

func TestToGray(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 7, 6))
	src.Set(5, 5, color.NRGBA{3, 3, 3, 255})
	src.Set(6, 5, color.NRGBA{0, 0, 0, 255})

	g := ToGray(src)
	if g.Bounds() != image.Rect(0, 0, 2, 1) {
		t.Fatalf("bounds: got %v", g.Bounds())
	}
	if g.GrayAt(0, 0).Y != 3 || g.GrayAt(1, 0).Y != 0 {
		t.Errorf("unexpected values %v", g.Pix)
	}

	sub := image.NewGray(image.Rect(0, 0, 3, 3))
	sub.SetGray(2, 2, color.Gray{Y: 47})
	cropped := ToGray(sub.SubImage(image.Rect(1, 1, 3, 3)))
	if cropped.GrayAt(1, 1).Y != 47 {
		t.Errorf("sub-image copy lost value: %v", cropped.Pix)
	}
}

func TestKey_String(t *testing.T) {
	if got := (Key{Split: "val", Name: "imp_03.jpg"}).String(); got != "val/imp_03.jpg" {
		t.Errorf("got %q, want val/imp_03.jpg", got)
	}
}
