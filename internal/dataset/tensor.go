package dataset

import (
	"fmt"

	"chipprep/internal/config"

	"gocv.io/x/gocv"
)

// Tensor is a dense float32 array in NCHW layout.
type Tensor struct {
	Shape [4]int // batch, channels, height, width
	Data  []float32
}

// NewTensor allocates a zeroed n x c x h x w tensor.
func NewTensor(n, c, h, w int) Tensor {
	return Tensor{
		Shape: [4]int{n, c, h, w},
		Data:  make([]float32, n*c*h*w),
	}
}

// Index returns the offset of element (n, c, y, x) in Data.
func (t Tensor) Index(n, c, y, x int) int {
	return ((n*t.Shape[1]+c)*t.Shape[2]+y)*t.Shape[3] + x
}

// At returns element (n, c, y, x).
func (t Tensor) At(n, c, y, x int) float32 {
	return t.Data[t.Index(n, c, y, x)]
}

// Sample returns the slice of Data holding sample n.
func (t Tensor) Sample(n int) []float32 {
	size := t.Shape[1] * t.Shape[2] * t.Shape[3]
	return t.Data[n*size : (n+1)*size]
}

// normalizer converts 8-bit BGR Mats into planar float channels.
type normalizer struct {
	mode string
	mean [3]float64
	std  [3]float64
}

func newNormalizer(cfg config.Config) normalizer {
	n := normalizer{mode: cfg.Normalization}
	switch cfg.Normalization {
	case config.NormStandardize:
		n.mean, n.std = cfg.RGBMean, cfg.RGBStd
	case config.NormHSV:
		n.mean, n.std = cfg.HSVMean, cfg.HSVStd
	}
	return n
}

// fill writes img into dst as three planes. RGB modes emit R, G, B; the HSV
// mode emits H, S, V in OpenCV units before standardization.
func (n normalizer) fill(dst []float32, img gocv.Mat) error {
	if img.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("unsupported image type %v, want 8-bit 3-channel", img.Type())
	}
	h, w := img.Rows(), img.Cols()
	if len(dst) != 3*h*w {
		return fmt.Errorf("image %dx%d does not fit tensor sample of %d values", w, h, len(dst))
	}

	src := img
	order := [3]int{2, 1, 0} // BGR -> RGB
	if n.mode == config.NormHSV {
		hsv := gocv.NewMat()
		defer hsv.Close()
		gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)
		src = hsv
		order = [3]int{0, 1, 2}
	}

	data := src.ToBytes()
	plane := h * w
	for c := 0; c < 3; c++ {
		out := dst[c*plane : (c+1)*plane]
		in := order[c]
		switch n.mode {
		case config.NormUnit:
			for i := range out {
				out[i] = float32(data[i*3+in]) / 255
			}
		default:
			mean, std := n.mean[c], n.std[c]
			for i := range out {
				out[i] = float32((float64(data[i*3+in]) - mean) / std)
			}
		}
	}
	return nil
}
