package annotation

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"chipprep/internal/monitoring"
	"chipprep/pkg/geometry"
)

// File is the JSON side-table layout.
//
//	{"chips": [{"id": "1036", "boxes": [{"class": 17, "bbox": [x1, y1, x2, y2]}]}]}
type File struct {
	Chips []ChipRecord `json:"chips"`
}

// ChipRecord holds the annotations of one chip.
type ChipRecord struct {
	ID    string      `json:"id"`
	Boxes []BoxRecord `json:"boxes"`
}

// BoxRecord is one annotated object.
type BoxRecord struct {
	Class int       `json:"class"`
	BBox  []float64 `json:"bbox"`
}

// LoadJSON loads a table from the JSON side-table layout.
func LoadJSON(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotations: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse annotations: %w", err)
	}

	t := &Table{boxes: make(map[string][]geometry.Box, len(f.Chips))}
	for i, chip := range f.Chips {
		if chip.ID == "" {
			return nil, fmt.Errorf("failed to parse annotations: chip %d has no id", i)
		}
		boxes := make([]geometry.Box, len(chip.Boxes))
		for j, r := range chip.Boxes {
			if len(r.BBox) != 4 {
				return nil, fmt.Errorf("failed to parse annotations: chip %s box %d: want 4 coordinates, got %d", chip.ID, j, len(r.BBox))
			}
			boxes[j] = geometry.NewBox(r.Class, r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3])
		}
		t.set(chip.ID, boxes)
	}
	t.index()

	monitoring.Logf("Loaded %d boxes for %d chips from %s", t.BoxCount(), t.Len(), path)
	return t, nil
}

// Save writes the table in the JSON side-table layout.
func (t *Table) Save(path string) error {
	f := File{Chips: make([]ChipRecord, 0, len(t.ids))}
	for _, id := range t.ids {
		rec := ChipRecord{ID: id, Boxes: make([]BoxRecord, 0, len(t.boxes[id]))}
		for _, b := range t.boxes[id] {
			rec.Boxes = append(rec.Boxes, BoxRecord{Class: b.Class, BBox: []float64{b.X1, b.Y1, b.X2, b.Y2}})
		}
		f.Chips = append(f.Chips, rec)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize annotations: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write annotations: %w", err)
	}
	return nil
}

// featureCollection mirrors the fields of xView_train.geojson that matter here.
type featureCollection struct {
	Features []struct {
		Properties struct {
			ImageID        string `json:"image_id"`
			TypeID         int    `json:"type_id"`
			BoundsImcoords string `json:"bounds_imcoords"`
		} `json:"properties"`
	} `json:"features"`
}

// LoadGeoJSON loads a table from an xView GeoJSON feature collection. Each
// feature carries the chip file name in image_id, the sparse code in type_id
// and the pixel box as a "x1,y1,x2,y2" string in bounds_imcoords.
func LoadGeoJSON(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotations: %w", err)
	}

	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse annotations: %w", err)
	}

	byChip := make(map[string][]geometry.Box)
	for i, f := range fc.Features {
		p := f.Properties
		if p.ImageID == "" {
			return nil, fmt.Errorf("failed to parse annotations: feature %d has no image_id", i)
		}
		coords, err := parseBounds(p.BoundsImcoords)
		if err != nil {
			return nil, fmt.Errorf("failed to parse annotations: feature %d: %w", i, err)
		}
		id := ChipID(p.ImageID)
		byChip[id] = append(byChip[id], geometry.NewBox(p.TypeID, coords[0], coords[1], coords[2], coords[3]))
	}

	t := NewTable(byChip)
	monitoring.Logf("Loaded %d boxes for %d chips from %s", t.BoxCount(), t.Len(), path)
	return t, nil
}

func parseBounds(s string) ([4]float64, error) {
	var out [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return out, fmt.Errorf("bounds %q: want 4 values, got %d", s, len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("bounds %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}
