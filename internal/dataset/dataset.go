// Package dataset assembles augmented training batches from chip images and
// their annotations.
//
// A Dataset is built once and is read-only afterwards. Each epoch draws a
// fresh permutation from an explicit seed and walks it in fixed-size
// batches:
//
//	ds, err := dataset.Open(cfg, "train_images", "xView_train.geojson")
//	for batch, err := range ds.Batches(seed) { ... }
//
// Batches are produced on demand, one per call, by the goroutine that asks
// for them. A Dataset must not be iterated from several goroutines at once.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"

	"chipprep/internal/annotation"
	"chipprep/internal/augment"
	"chipprep/internal/chip"
	"chipprep/internal/classmap"
	"chipprep/internal/config"
	"chipprep/internal/monitoring"
	"chipprep/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrNoChips is returned when the chip source is empty.
var ErrNoChips = errors.New("no chips found")

// Label is one object of a sample. Class is the dense class index. Coords are
// fractions of the target size, laid out as (x1, y1, x2, y2) or
// (cx, cy, w, h) depending on Config.LabelFormat.
type Label struct {
	Class  int
	Coords [4]float32
}

// Row returns the label as (class, c0, c1, c2, c3).
func (l Label) Row() [5]float32 {
	return [5]float32{float32(l.Class), l.Coords[0], l.Coords[1], l.Coords[2], l.Coords[3]}
}

// Sample is one augmented chip before normalization. Boxes carry dense class
// indices in pixel coordinates of Image.
type Sample struct {
	ID    string
	Image gocv.Mat
	Boxes []geometry.Box
}

// Close releases the image.
func (s *Sample) Close() {
	s.Image.Close()
}

// Dataset pairs a chip source with its annotation table.
type Dataset struct {
	cfg    config.Config
	src    chip.Source
	table  *annotation.Table
	ids    []string
	ranges augment.AffineRanges
	axes   augment.AxisMode
	norm   normalizer
}

// New validates cfg and builds a dataset over src. A nil table means no chip
// has annotations. Every annotated class code must be known to the class
// map.
func New(cfg config.Config, src chip.Source, table *annotation.Table) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ids := src.IDs()
	if len(ids) == 0 {
		return nil, ErrNoChips
	}
	if table == nil {
		table = annotation.NewTable(nil)
	}
	for code := range table.ClassHistogram() {
		if _, err := classmap.Remap(code); err != nil {
			return nil, fmt.Errorf("invalid annotations: %w", err)
		}
	}

	d := &Dataset{
		cfg:   cfg,
		src:   src,
		table: table,
		ids:   ids,
		ranges: augment.AffineRanges{
			Degrees:     cfg.Affine.Degrees,
			Translate:   cfg.Affine.Translate,
			Scale:       cfg.Affine.Scale,
			Shear:       cfg.Affine.Shear,
			RightAngles: cfg.Affine.RightAngles,
		},
		norm: newNormalizer(cfg),
	}
	if cfg.Axes == config.AxesLegacy {
		d.axes = augment.AxesLegacy
	}

	missing := 0
	for _, id := range ids {
		if !table.Has(id) {
			missing++
		}
	}
	monitoring.Logf("Dataset: %d chips, %d annotated boxes, %d chips without annotations",
		len(ids), table.BoxCount(), missing)
	return d, nil
}

// Open builds a dataset from a chip directory and an annotation file.
func Open(cfg config.Config, chipDir, annotationPath string) (*Dataset, error) {
	table, err := annotation.Load(annotationPath)
	if err != nil {
		return nil, err
	}
	src, err := chip.OpenDir(chipDir, cfg.ChipExt)
	if err != nil {
		return nil, err
	}
	ds, err := New(cfg, src, table)
	if errors.Is(err, ErrNoChips) {
		return nil, fmt.Errorf("%w in %s", ErrNoChips, chipDir)
	}
	return ds, err
}

// Config returns the dataset configuration.
func (d *Dataset) Config() config.Config {
	return d.cfg
}

// Chips returns the number of chips.
func (d *Dataset) Chips() int {
	return len(d.ids)
}

// IDs returns the chip IDs in source order.
func (d *Dataset) IDs() []string {
	out := make([]string, len(d.ids))
	copy(out, d.ids)
	return out
}

// Len returns the number of batches per epoch.
func (d *Dataset) Len() int {
	return (len(d.ids) + d.cfg.BatchSize - 1) / d.cfg.BatchSize
}

// Augment loads one chip and produces Config.CropsPerChip augmented samples.
// The caller must close every returned sample.
func (d *Dataset) Augment(rng *rand.Rand, id string) ([]Sample, error) {
	img, err := d.src.Load(id)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	boxes := d.table.Boxes(id)
	samples := make([]Sample, 0, d.cfg.CropsPerChip)
	for i := 0; i < d.cfg.CropsPerChip; i++ {
		s, err := d.augmentOne(rng, id, img, boxes)
		if err != nil {
			for j := range samples {
				samples[j].Close()
			}
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func (d *Dataset) augmentOne(rng *rand.Rand, id string, img gocv.Mat, boxes []geometry.Box) (Sample, error) {
	size := d.cfg.TargetSize

	var cur gocv.Mat
	var bx []geometry.Box
	if d.cfg.LetterboxSmall && (img.Cols() < size || img.Rows() < size) {
		cur, bx = augment.Letterbox(img, size, boxes)
		bx = augment.CropBoxes(bx, 0, 0, size, d.cfg.MinCropBox)
	} else {
		var err error
		cur, bx, err = augment.SampleCrop(rng, img, size, boxes, d.cfg.MinCropBox)
		if err != nil {
			cur.Close()
			return Sample{}, err
		}
	}

	if d.cfg.Mode == config.ModeCropAffine {
		warped, wb, _ := augment.RandomAffine(rng, cur, bx, d.ranges, d.axes, d.cfg.MinWarpBox)
		cur.Close()
		cur, bx = warped, wb
	}

	if d.cfg.FlipLR && rng.Float64() < d.cfg.FlipProbability {
		flipped, fb := augment.FlipLR(cur, bx)
		cur.Close()
		cur, bx = flipped, fb
	}
	if d.cfg.FlipUD && rng.Float64() < d.cfg.FlipProbability {
		flipped, fb := augment.FlipUD(cur, bx)
		cur.Close()
		cur, bx = flipped, fb
	}

	dense, err := classmap.RemapBoxes(bx)
	if err != nil {
		cur.Close()
		return Sample{}, err
	}
	return Sample{ID: id, Image: cur, Boxes: dense}, nil
}

// labels converts pixel boxes to label rows normalized by the target size.
func (d *Dataset) labels(boxes []geometry.Box) []Label {
	s := float64(d.cfg.TargetSize)
	out := make([]Label, len(boxes))
	for i, b := range boxes {
		l := Label{Class: b.Class}
		if d.cfg.LabelFormat == config.LabelsXYWH {
			l.Coords = [4]float32{
				float32((b.X1 + b.X2) / 2 / s),
				float32((b.Y1 + b.Y2) / 2 / s),
				float32(b.Width() / s),
				float32(b.Height() / s),
			}
		} else {
			l.Coords = [4]float32{float32(b.X1 / s), float32(b.Y1 / s), float32(b.X2 / s), float32(b.Y2 / s)}
		}
		out[i] = l
	}
	return out
}
