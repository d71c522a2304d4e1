package export

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
)

// LabeledClass lists the source photographs of one class.
type LabeledClass struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// SplitFractions are the validation and test shares of each class; the rest goes
// to training.
type SplitFractions struct {
	Val  float64
	Test float64
}

// DefaultSplitFractions returns the fractions of an 80/10/10 split.
func DefaultSplitFractions() SplitFractions {
	return SplitFractions{Val: 0.1, Test: 0.1}
}

// LoadLabeledClasses reads a class listing of the form
// [{"name": "...", "files": ["dir/a.jpg", ...]}, ...].
func LoadLabeledClasses(path string) ([]LabeledClass, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class listing: %w", err)
	}
	var classes []LabeledClass
	if err := json.Unmarshal(data, &classes); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return classes, nil
}

// SplitLibrary copies the photographs of every class from srcDir into
// <libRoot>/images/{train,val,test}, shuffling each class with a generator seeded
// by seed. Validation and test each receive max(1, int(n*fraction)) files of a
// class with n files, training the remainder. A class with a single file places it
// in test. Mask directories are created empty
// for every split.
//
// Only the base name of each listed file is used to locate it in srcDir. Missing
// files are logged and skipped. It returns the number of files copied per split.
func SplitLibrary(classes []LabeledClass, srcDir, libRoot string, fr SplitFractions, seed int64) (map[string]int, error) {
	for _, split := range []string{"train", "val", "test"} {
		for _, kind := range []string{"images", "masks"} {
			if err := os.MkdirAll(filepath.Join(libRoot, kind, split), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create split directory: %w", err)
			}
		}
	}

	rng := rand.New(rand.NewSource(seed))
	counts := map[string]int{}

	for _, class := range classes {
		files := append([]string(nil), class.Files...)
		rng.Shuffle(len(files), func(i, j int) { files[i], files[j] = files[j], files[i] })

		n := len(files)
		nVal := max(1, int(float64(n)*fr.Val))
		nTest := max(1, int(float64(n)*fr.Test))
		nTrain := n - nVal - nTest
		if nTrain < 0 {
			// A lone file is a test file.
			nTrain, nVal = 0, 0
		}

		assign := func(i int) string {
			switch {
			case i < nTrain:
				return "train"
			case i < nTrain+nVal:
				return "val"
			default:
				return "test"
			}
		}

		for i, rel := range files {
			split := assign(i)
			name := filepath.Base(rel)
			src := filepath.Join(srcDir, name)
			dst := filepath.Join(libRoot, "images", split, name)

			if err := copyFile(src, dst); err != nil {
				if os.IsNotExist(err) {
					log.Printf("Warning: %s does not exist, skipping", src)
					continue
				}
				return nil, fmt.Errorf("failed to copy %s: %w", src, err)
			}
			counts[split]++
		}
	}

	return counts, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(out, &err)

	_, err = io.Copy(out, in)
	return err
}
