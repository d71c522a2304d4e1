package export

// TFRecord object detection export.

import (
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG format decoder
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow

	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/compose"
)

// TFRecordDir is the directory below the dataset root holding record files.
const TFRecordDir = "tfrecord"

// TFRecordPath returns the record file path of split.
func (l Layout) TFRecordPath(split string) string {
	return filepath.Join(l.Root, TFRecordDir, split+".record")
}

// toTFFeatures converts one written canvas into object detection features. Class
// labels are shifted by one, as label id 0 is reserved for the background.
func toTFFeatures(l Layout, split string, index int, names map[int]string) (map[string]interface{}, error) {
	imgPath, _, labelPath := l.Paths(split, index)

	imgData, err := os.ReadFile(imgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}
	f, err := os.Open(imgPath)
	if err != nil {
		return nil, err
	}
	cfg, format, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %v", err)
	}

	labelData, err := os.ReadFile(labelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the labels: %v", err)
	}
	records, err := compose.ParseRecords(labelData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", labelPath, err)
	}

	n := len(records)
	xmins := make([]float32, n)
	ymins := make([]float32, n)
	xmaxs := make([]float32, n)
	ymaxs := make([]float32, n)
	classes := make([]string, n)
	classIDs := make([]int64, n)
	for i, r := range records {
		xmins[i] = float32(r.CenterX - r.Width/2)
		xmaxs[i] = float32(r.CenterX + r.Width/2)
		ymins[i] = float32(r.CenterY - r.Height/2)
		ymaxs[i] = float32(r.CenterY + r.Height/2)
		classIDs[i] = int64(r.ClassID + 1)
		classes[i] = className(names, r.ClassID)
	}

	name := filepath.Base(imgPath)
	return map[string]interface{}{
		"image/height":             cfg.Height,
		"image/width":              cfg.Width,
		"image/filename":           name,
		"image/source_id":          split + "/" + name,
		"image/encoded":            imgData,
		"image/format":             format,
		"image/object/bbox/xmin":   xmins,
		"image/object/bbox/ymin":   ymins,
		"image/object/bbox/xmax":   xmaxs,
		"image/object/bbox/ymax":   ymaxs,
		"image/object/class/text":  classes,
		"image/object/class/label": classIDs,
	}, nil
}

// WriteTFRecord serialises the written canvases of split, in the given order, into
// a single TFRecord file and writes the matching label map next to it.
//
// Canvases that cannot be converted are logged and skipped.
func WriteTFRecord(l Layout, split string, indices []int, names map[int]string) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	path := l.TFRecordPath(split)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	for _, idx := range indices {
		features, err := toTFFeatures(l, split, idx, names)
		if err != nil {
			log.Printf("Failed to convert %s/%s: %v", split, CanvasName(idx), err)
			continue
		}
		if err := writeTFRecordExample(file, example.New(features)); err != nil {
			return fmt.Errorf("failed to write example %s: %v", CanvasName(idx), err)
		}
	}

	return writeLabelMap(filepath.Join(filepath.Dir(path), "label_map.pbtxt"), names)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}
	return tfrecord.Write(w, enc)
}

// writeLabelMap writes names as a StringIntLabelMap in protobuf text format, with
// ids shifted by one to match the record class labels.
func writeLabelMap(path string, names map[int]string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	for _, id := range ClassIDs(names) {
		if _, err := fmt.Fprintf(file, "item {\n  id: %d\n  name: %q\n}\n", id+1, names[id]); err != nil {
			return err
		}
	}
	return nil
}

func className(names map[int]string, id int) string {
	if n, ok := names[id]; ok {
		return n
	}
	return strconv.Itoa(id)
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
