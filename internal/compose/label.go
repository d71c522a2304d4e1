package compose

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Record is one detection label: a class and a box normalized by canvas size.
type Record struct {
	ClassID int
	CenterX float64
	CenterY float64
	Width   float64
	Height  float64
}

// String renders the record as "class cx cy w h" with six decimals per box value.
func (r Record) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", r.ClassID, r.CenterX, r.CenterY, r.Width, r.Height)
}

// Bounds returns the record's box in canvas pixels as (x1, y1, x2, y2).
func (r Record) Bounds(canvasWidth, canvasHeight int) (x1, y1, x2, y2 float64) {
	w, h := float64(canvasWidth), float64(canvasHeight)
	x1 = (r.CenterX - r.Width/2) * w
	x2 = (r.CenterX + r.Width/2) * w
	y1 = (r.CenterY - r.Height/2) * h
	y2 = (r.CenterY + r.Height/2) * h
	return x1, y1, x2, y2
}

// Encode derives the label of a sprite mask pasted at at onto a canvas of the
// given size. The box spans the extreme footprint pixel coordinates, so a single
// pixel footprint has zero width and height.
//
// The boolean is false when mask has no foreground; no record exists then.
func Encode(canvasWidth, canvasHeight int, at Placement, mask *image.Gray, classID int) (Record, bool) {
	minX, minY := mask.Rect.Dx(), mask.Rect.Dy()
	maxX, maxY := -1, -1

	w := mask.Rect.Dx()
	for y := 0; y < mask.Rect.Dy(); y++ {
		for x, v := range mask.Pix[y*mask.Stride : y*mask.Stride+w] {
			if v == 0 {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}
	if maxX < 0 {
		return Record{}, false
	}

	cw, ch := float64(canvasWidth), float64(canvasHeight)
	x1, x2 := float64(at.X+minX), float64(at.X+maxX)
	y1, y2 := float64(at.Y+minY), float64(at.Y+maxY)

	return Record{
		ClassID: classID,
		CenterX: (x1 + x2) / 2 / cw,
		CenterY: (y1 + y2) / 2 / ch,
		Width:   (x2 - x1) / cw,
		Height:  (y2 - y1) / ch,
	}, true
}

// FormatRecords joins records into label file content, one record per line and no
// trailing newline. No records produce empty content.
func FormatRecords(records []Record) []byte {
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = r.String()
	}
	return []byte(strings.Join(lines, "\n"))
}

// ParseRecords parses label file content written by FormatRecords. Blank lines are
// ignored.
func ParseRecords(data []byte) ([]Record, error) {
	var records []Record
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 {
			return nil, fmt.Errorf("line %d: expected 5 fields, got %d", i+1, len(fields))
		}

		classID, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid class id: %w", i+1, err)
		}
		var box [4]float64
		for j := range box {
			if box[j], err = strconv.ParseFloat(fields[j+1], 64); err != nil {
				return nil, fmt.Errorf("line %d: invalid box value: %w", i+1, err)
			}
		}

		records = append(records, Record{
			ClassID: classID,
			CenterX: box[0],
			CenterY: box[1],
			Width:   box[2],
			Height:  box[3],
		})
	}
	return records, nil
}
