package dataset

import (
	"fmt"
	"iter"

	"chipprep/internal/chip"
	"chipprep/internal/config"
)

// Image is one evaluation image as a 1 x 3 x H x W tensor.
type Image struct {
	Path   string
	Tensor Tensor
}

// Folder iterates the images of a directory for evaluation. Images keep
// their original size and are not augmented.
type Folder struct {
	files []string
	norm  normalizer
}

// NewFolder lists the supported images under path, which may also name a
// single file. Images are standardized with the configured RGB statistics
// unless cfg selects another normalization.
func NewFolder(path string, cfg config.Config) (*Folder, error) {
	files, err := chip.ListImages(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoChips, path)
	}
	if cfg.Normalization == config.NormUnit {
		cfg.Normalization = config.NormStandardize
	}
	return &Folder{files: files, norm: newNormalizer(cfg)}, nil
}

// Len returns the number of images.
func (f *Folder) Len() int {
	return len(f.files)
}

// Files returns the image paths in iteration order.
func (f *Folder) Files() []string {
	out := make([]string, len(f.files))
	copy(out, f.files)
	return out
}

// All yields every image in order. A load failure is yielded as an error
// for that path and iteration continues.
func (f *Folder) All() iter.Seq2[Image, error] {
	return func(yield func(Image, error) bool) {
		for _, path := range f.files {
			img, err := f.load(path)
			if !yield(img, err) {
				return
			}
		}
	}
}

func (f *Folder) load(path string) (Image, error) {
	mat, err := chip.LoadFile(path)
	if err != nil {
		return Image{Path: path}, err
	}
	defer mat.Close()

	t := NewTensor(1, 3, mat.Rows(), mat.Cols())
	if err := f.norm.fill(t.Sample(0), mat); err != nil {
		return Image{Path: path}, fmt.Errorf("failed to normalize %s: %w", path, err)
	}
	return Image{Path: path, Tensor: t}, nil
}
