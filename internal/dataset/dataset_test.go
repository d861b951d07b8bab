package dataset

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"chipprep/internal/annotation"
	"chipprep/internal/augment"
	"chipprep/internal/chip"
	"chipprep/internal/classmap"
	"chipprep/internal/config"
	"chipprep/internal/monitoring"
	"chipprep/pkg/geometry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

const testSize = 32

func testConfig() config.Config {
	cfg := config.Default()
	cfg.TargetSize = testSize
	return cfg
}

func solidMat(t *testing.T, w, h int, b, g, r float64) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), h, w, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

// memorySource holds n chips of 64x64 named chip0.tif, chip1.tif, ...
func memorySource(t *testing.T, n int) *chip.Memory {
	t.Helper()
	src := chip.NewMemory()
	t.Cleanup(src.Close)
	for i := 0; i < n; i++ {
		src.Add(fmt.Sprintf("chip%d", i), solidMat(t, 64, 64, float64(i), 100, 200))
	}
	return src
}

// annotated gives every chip a few boxes with known xView codes.
func annotated(src chip.Source) *annotation.Table {
	boxes := make(map[string][]geometry.Box)
	for _, id := range src.IDs() {
		boxes[id] = []geometry.Box{
			geometry.NewBox(17, 4, 4, 60, 60),
			geometry.NewBox(73, 10, 20, 40, 50),
			geometry.NewBox(14, 0, 0, 64, 64), // dropped by the class map
		}
	}
	return annotation.NewTable(boxes)
}

// failingSource reports an extra ID that cannot be loaded.
type failingSource struct {
	chip.Source
	bad string
}

func (s failingSource) IDs() []string {
	return append(s.Source.IDs(), s.bad)
}

func collect(t *testing.T, ds *Dataset, seed int64) []*Batch {
	t.Helper()
	var out []*Batch
	for b, err := range ds.Batches(seed) {
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func TestNewErrors(t *testing.T) {
	_, err := New(testConfig(), chip.NewMemory(), nil)
	assert.ErrorIs(t, err, ErrNoChips)

	src := memorySource(t, 1)
	_, err = New(testConfig().WithBatchSize(0), src, nil)
	assert.Error(t, err)

	table := annotation.NewTable(map[string][]geometry.Box{
		"chip0": {geometry.NewBox(200, 0, 0, 10, 10)},
	})
	_, err = New(testConfig(), src, table)
	assert.ErrorIs(t, err, classmap.ErrUnknownCode)
}

func TestBatchCount(t *testing.T) {
	tests := []struct {
		chips, batch int
		sizes        []int
	}{
		{5, 2, []int{2, 2, 1}},
		{4, 2, []int{2, 2}},
		{3, 8, []int{3}},
		{1, 1, []int{1}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.chips, tt.batch), func(t *testing.T) {
			src := memorySource(t, tt.chips)
			ds, err := New(testConfig().WithBatchSize(tt.batch), src, annotated(src))
			require.NoError(t, err)
			assert.Equal(t, len(tt.sizes), ds.Len())

			batches := collect(t, ds, 1)
			var sizes []int
			for i, b := range batches {
				assert.Equal(t, i, b.Index)
				sizes = append(sizes, b.Len())
				assert.Equal(t, [4]int{b.Len(), 3, testSize, testSize}, b.Images.Shape)
			}
			assert.Equal(t, tt.sizes, sizes)
		})
	}
}

func TestEpochVisitsEveryChipOnce(t *testing.T) {
	src := memorySource(t, 7)
	ds, err := New(testConfig().WithBatchSize(3), src, annotated(src))
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, b := range collect(t, ds, 42) {
		for _, id := range b.IDs {
			seen[id]++
		}
	}
	assert.Len(t, seen, 7)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestEpochDeterministic(t *testing.T) {
	src := memorySource(t, 6)
	cfg := testConfig().WithBatchSize(4).WithMode(config.ModeCropAffine)
	ds, err := New(cfg, src, annotated(src))
	require.NoError(t, err)

	a := collect(t, ds, 7)
	b := collect(t, ds, 7)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different epochs (-first +second):\n%s", diff)
	}

	var orderA, orderC []string
	for _, batch := range a {
		orderA = append(orderA, batch.IDs...)
	}
	for _, batch := range collect(t, ds, 8) {
		orderC = append(orderC, batch.IDs...)
	}
	assert.ElementsMatch(t, orderA, orderC)
}

func TestEpochStates(t *testing.T) {
	src := memorySource(t, 3)
	ds, err := New(testConfig().WithBatchSize(2), src, nil)
	require.NoError(t, err)

	e := ds.Epoch(1)
	assert.NotEmpty(t, e.ID())
	assert.NotEqual(t, e.ID(), ds.Epoch(1).ID())
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, 2, e.Remaining())

	_, err = e.Next()
	require.NoError(t, err)
	assert.Equal(t, StateIterating, e.State())
	_, err = e.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, e.Remaining())

	_, err = e.Next()
	assert.ErrorIs(t, err, ErrEpochDone)
	assert.Equal(t, StateExhausted, e.State())
	_, err = e.Next()
	assert.ErrorIs(t, err, ErrEpochDone)
	assert.Equal(t, "exhausted", e.State().String())
}

func TestBatchesEarlyBreak(t *testing.T) {
	src := memorySource(t, 5)
	ds, err := New(testConfig(), src, nil)
	require.NoError(t, err)

	n := 0
	for range ds.Batches(3) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
	assert.Len(t, collect(t, ds, 3), 5)
}

func TestLabelsNormalizedAndDense(t *testing.T) {
	for _, mode := range []string{config.ModeCrop, config.ModeCropAffine} {
		t.Run(mode, func(t *testing.T) {
			src := memorySource(t, 8)
			ds, err := New(testConfig().WithBatchSize(3).WithMode(mode), src, annotated(src))
			require.NoError(t, err)

			for _, b := range collect(t, ds, 11) {
				require.Len(t, b.Labels, b.Len())
				for _, labels := range b.Labels {
					for _, l := range labels {
						assert.True(t, l.Class >= 0 && l.Class < classmap.NumClasses, "class %d", l.Class)
						assert.NotEqual(t, classmap.Dropped, l.Class)
						for _, v := range l.Coords {
							assert.True(t, v >= 0 && v <= 1, "coordinate %v", v)
						}
						assert.Less(t, l.Coords[0], l.Coords[2])
						assert.Less(t, l.Coords[1], l.Coords[3])
					}
				}
			}
		})
	}
}

func TestLabelFormats(t *testing.T) {
	src := memorySource(t, 1)
	ds, err := New(testConfig(), src, nil)
	require.NoError(t, err)
	box := []geometry.Box{geometry.NewBox(4, 8, 0, 24, 16)}

	assert.Equal(t, []Label{{Class: 4, Coords: [4]float32{0.25, 0, 0.75, 0.5}}}, ds.labels(box))

	cfg := testConfig()
	cfg.LabelFormat = config.LabelsXYWH
	ds, err = New(cfg, src, nil)
	require.NoError(t, err)
	got := ds.labels(box)
	assert.Equal(t, []Label{{Class: 4, Coords: [4]float32{0.5, 0.25, 0.5, 0.5}}}, got)
	assert.Equal(t, [5]float32{4, 0.5, 0.25, 0.5, 0.5}, got[0].Row())
}

func TestFlipProbabilityOne(t *testing.T) {
	src := chip.NewMemory()
	t.Cleanup(src.Close)
	src.Add("a", solidMat(t, testSize, testSize, 0, 0, 0))
	table := annotation.NewTable(map[string][]geometry.Box{
		"a": {geometry.NewBox(17, 0, 0, 8, 4)},
	})

	cfg := testConfig().WithLegacyBehavior()
	ds, err := New(cfg, src, table)
	require.NoError(t, err)

	samples, err := ds.Augment(ds.Epoch(1).rng, "a")
	require.NoError(t, err)
	defer samples[0].Close()
	// Window equals the chip, so only the two flips move the box.
	assert.Equal(t, []geometry.Box{geometry.NewBox(4, 24, 28, 32, 32)}, samples[0].Boxes)
}

func TestSkipFailedChips(t *testing.T) {
	src := memorySource(t, 3)
	bad := failingSource{Source: src, bad: "missing"}

	ds, err := New(testConfig().WithBatchSize(4), bad, nil)
	require.NoError(t, err)
	batches := collect(t, ds, 1)
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"missing"}, batches[0].Skipped)
	assert.Equal(t, 3, batches[0].Len())

	cfg := testConfig().WithBatchSize(4)
	cfg.FailFast = true
	ds, err = New(cfg, bad, nil)
	require.NoError(t, err)
	_, err = ds.Epoch(1).Next()
	assert.ErrorIs(t, err, chip.ErrNotFound)
}

func TestSmallChips(t *testing.T) {
	src := chip.NewMemory()
	t.Cleanup(src.Close)
	src.Add("small", solidMat(t, 16, 8, 0, 0, 0))
	table := annotation.NewTable(map[string][]geometry.Box{
		"small": {geometry.NewBox(17, 0, 0, 16, 8)},
	})

	ds, err := New(testConfig(), src, table)
	require.NoError(t, err)
	b, err := ds.Epoch(1).Next()
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, []string{"small"}, b.Skipped)

	cfg := testConfig()
	cfg.LetterboxSmall = true
	cfg.FlipLR, cfg.FlipUD = false, false
	ds, err = New(cfg, src, table)
	require.NoError(t, err)
	samples, err := ds.Augment(ds.Epoch(1).rng, "small")
	require.NoError(t, err)
	defer samples[0].Close()

	assert.Equal(t, testSize, samples[0].Image.Cols())
	assert.Equal(t, testSize, samples[0].Image.Rows())
	assert.Equal(t, []geometry.Box{geometry.NewBox(4, 0, 8, 32, 24)}, samples[0].Boxes)
}

func TestCropsPerChip(t *testing.T) {
	src := memorySource(t, 3)
	cfg := testConfig().WithBatchSize(2)
	cfg.CropsPerChip = 3
	ds, err := New(cfg, src, annotated(src))
	require.NoError(t, err)

	batches := collect(t, ds, 5)
	require.Len(t, batches, 2)
	assert.Equal(t, 6, batches[0].Len())
	assert.Equal(t, 3, batches[1].Len())

	counts := make(map[string]int)
	for _, id := range batches[0].IDs {
		counts[id]++
	}
	for _, n := range counts {
		assert.Equal(t, 3, n)
	}
}

func TestNormalization(t *testing.T) {
	const b, g, r = 10, 20, 30
	tests := []struct {
		name string
		mode string
		want func(cfg config.Config) [3]float32
	}{
		{"unit", config.NormUnit, func(config.Config) [3]float32 {
			return [3]float32{r / 255.0, g / 255.0, b / 255.0}
		}},
		{"standardize", config.NormStandardize, func(cfg config.Config) [3]float32 {
			m, s := cfg.RGBMean, cfg.RGBStd
			return [3]float32{
				float32((r - m[0]) / s[0]),
				float32((g - m[1]) / s[1]),
				float32((b - m[2]) / s[2]),
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := chip.NewMemory()
			t.Cleanup(src.Close)
			src.Add("a", solidMat(t, 40, 40, b, g, r))
			cfg := testConfig()
			cfg.Normalization = tt.mode
			ds, err := New(cfg, src, nil)
			require.NoError(t, err)

			batch, err := ds.Epoch(1).Next()
			require.NoError(t, err)
			want := tt.want(cfg)
			for c := 0; c < 3; c++ {
				assert.InDelta(t, want[c], batch.Images.At(0, c, 0, 0), 1e-5)
				assert.InDelta(t, want[c], batch.Images.At(0, c, testSize-1, testSize-1), 1e-5)
			}
		})
	}
}

func TestNormalizationHSV(t *testing.T) {
	src := chip.NewMemory()
	t.Cleanup(src.Close)
	src.Add("blue", solidMat(t, testSize, testSize, 255, 0, 0))
	cfg := testConfig()
	cfg.Normalization = config.NormHSV
	ds, err := New(cfg, src, nil)
	require.NoError(t, err)

	batch, err := ds.Epoch(1).Next()
	require.NoError(t, err)
	// Pure blue is H=120, S=255, V=255 in OpenCV's 8-bit HSV.
	hsv := [3]float64{120, 255, 255}
	for c := 0; c < 3; c++ {
		want := (hsv[c] - cfg.HSVMean[c]) / cfg.HSVStd[c]
		assert.InDelta(t, want, batch.Images.At(0, c, 5, 5), 1e-4)
	}
}

func TestTensorLayout(t *testing.T) {
	ts := NewTensor(2, 3, 4, 5)
	assert.Len(t, ts.Data, 120)
	assert.Equal(t, 0, ts.Index(0, 0, 0, 0))
	assert.Equal(t, 5, ts.Index(0, 0, 1, 0))
	assert.Equal(t, 20, ts.Index(0, 1, 0, 0))
	assert.Equal(t, 60, ts.Index(1, 0, 0, 0))

	ts.Sample(1)[0] = 7
	assert.Equal(t, float32(7), ts.At(1, 0, 0, 0))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	img := solidMat(t, 48, 48, 1, 2, 3)
	for _, id := range []string{"10", "11"} {
		require.True(t, gocv.IMWrite(filepath.Join(dir, id+".bmp"), img))
	}
	ann := filepath.Join(dir, "labels.json")
	require.NoError(t, os.WriteFile(ann, []byte(`{"chips":[{"id":"10","boxes":[{"class":17,"bbox":[0,0,40,40]}]}]}`), 0644))

	ds, err := Open(testConfig(), dir, ann)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Chips())
	assert.Equal(t, []string{"10", "11"}, ds.IDs())

	_, err = Open(testConfig(), t.TempDir(), ann)
	assert.ErrorIs(t, err, ErrNoChips)
}

func TestFolder(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	require.True(t, gocv.IMWrite(filepath.Join(dir, "a.bmp"), solidMat(t, 20, 10, 40, 50, 60)))
	require.True(t, gocv.IMWrite(filepath.Join(dir, "b.png"), solidMat(t, 8, 8, 0, 0, 0)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	f, err := NewFolder(dir, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())

	var shapes [][4]int
	for img, err := range f.All() {
		require.NoError(t, err)
		shapes = append(shapes, img.Tensor.Shape)
		if filepath.Base(img.Path) == "a.bmp" {
			want := (60 - cfg.RGBMean[0]) / cfg.RGBStd[0]
			assert.InDelta(t, want, img.Tensor.At(0, 0, 3, 7), 1e-5)
		}
	}
	assert.Equal(t, [][4]int{{1, 3, 10, 20}, {1, 3, 8, 8}}, shapes)

	_, err = NewFolder(t.TempDir(), cfg)
	assert.ErrorIs(t, err, ErrNoChips)
}

func TestLegacyConfig(t *testing.T) {
	src := memorySource(t, 1)
	cfg := testConfig().WithLegacyBehavior()
	ds, err := New(cfg, src, nil)
	require.NoError(t, err)
	assert.Equal(t, augment.AxesLegacy, ds.axes)
	assert.Equal(t, cfg.Affine.Translate, ds.ranges.Translate)
	assert.Equal(t, cfg.Affine.RightAngles, ds.ranges.RightAngles)
	assert.Equal(t, cfg, ds.Config())
}

func TestSampleDraw(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 64, 64, gocv.MatTypeCV8UC3)
	s := Sample{ID: "a", Image: img, Boxes: []geometry.Box{geometry.NewBox(4, 10, 30, 40, 60)}}
	defer s.Close()

	s.Draw(color.RGBA{G: 255, A: 255})

	assert.Equal(t, gocv.Vecb{0, 255, 0}, s.Image.GetVecbAt(45, 10), "left edge")
	assert.Equal(t, gocv.Vecb{0, 0, 0}, s.Image.GetVecbAt(45, 25), "interior")

	// The class label (xView code 17 for dense class 4) sits above the box.
	label := s.Image.Region(image.Rect(10, 0, 40, 29))
	defer label.Close()
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(label, &gray, gocv.ColorBGRToGray)
	assert.Positive(t, gocv.CountNonZero(gray))
}
