// Package annotation loads the per-chip bounding-box side table.
//
// A Table is built once when a dataset is constructed and is read-only
// afterwards. Callers always receive copies of the stored boxes, so
// augmentation can never leak into the next epoch.
package annotation

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"chipprep/pkg/geometry"
)

// Table maps chip IDs to their annotated boxes in sparse class codes.
type Table struct {
	boxes map[string][]geometry.Box
	ids   []string
	total int
}

// NewTable builds a table from a map. Boxes are copied and normalized so that
// x1<=x2 and y1<=y2.
func NewTable(src map[string][]geometry.Box) *Table {
	t := &Table{boxes: make(map[string][]geometry.Box, len(src))}
	for id, boxes := range src {
		t.set(id, boxes)
	}
	t.index()
	return t
}

func (t *Table) set(id string, boxes []geometry.Box) {
	stored := make([]geometry.Box, len(boxes))
	for i, b := range boxes {
		stored[i] = b.Normalized()
	}
	t.boxes[id] = append(t.boxes[id], stored...)
}

func (t *Table) index() {
	t.ids = t.ids[:0]
	t.total = 0
	for id, boxes := range t.boxes {
		t.ids = append(t.ids, id)
		t.total += len(boxes)
	}
	sort.Strings(t.ids)
}

// Boxes returns a copy of the boxes for a chip. Unknown chips yield an empty
// slice: a chip without annotations is a valid negative sample.
func (t *Table) Boxes(id string) []geometry.Box {
	return geometry.CloneBoxes(t.boxes[id])
}

// Has reports whether the chip has an entry in the table.
func (t *Table) Has(id string) bool {
	_, ok := t.boxes[id]
	return ok
}

// IDs returns the sorted chip IDs present in the table.
func (t *Table) IDs() []string {
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

// Len returns the number of chips in the table.
func (t *Table) Len() int {
	return len(t.ids)
}

// BoxCount returns the total number of boxes across all chips.
func (t *Table) BoxCount() int {
	return t.total
}

// ClassHistogram counts boxes per sparse class code.
func (t *Table) ClassHistogram() map[int]int {
	hist := make(map[int]int)
	for _, boxes := range t.boxes {
		for _, b := range boxes {
			hist[b.Class]++
		}
	}
	return hist
}

// ChipID derives a chip ID from an image file name: the base name without
// its extension ("train_images/1036.bmp" -> "1036").
func ChipID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load reads an annotation file, choosing the format by extension:
// .geojson for xView feature collections, .json for chip records.
func Load(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson":
		return LoadGeoJSON(path)
	case ".json":
		return LoadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported annotation format: %q", filepath.Ext(path))
	}
}
