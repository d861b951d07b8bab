// Package chip provides access to source chip images by chip ID.
package chip

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"
)

// ErrNotFound is returned for IDs the source does not hold.
var ErrNotFound = errors.New("chip not found")

// Source lists chips and decodes them on demand. Loaded Mats are BGR, 8 bits
// per channel, and owned by the caller.
type Source interface {
	IDs() []string
	Load(id string) (gocv.Mat, error)
}

// LoadFile decodes an image file as 3-channel BGR.
func LoadFile(path string) (gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to open image: %w", err)
	}
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), fmt.Errorf("failed to decode image: %s", path)
	}
	return img, nil
}

// Dir is a directory of chip images sharing one extension. A chip's ID is
// its file name without the extension.
type Dir struct {
	root  string
	ext   string
	ids   []string
	paths map[string]string
}

// OpenDir indexes the files with extension ext (for example ".bmp") in root.
func OpenDir(root, ext string) (*Dir, error) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	matches, err := filepath.Glob(filepath.Join(root, "*"+ext))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	sort.Strings(matches)

	d := &Dir{root: root, ext: ext, paths: make(map[string]string, len(matches))}
	for _, path := range matches {
		id := strings.TrimSuffix(filepath.Base(path), ext)
		d.ids = append(d.ids, id)
		d.paths[id] = path
	}
	return d, nil
}

// IDs returns the chip IDs in file-name order.
func (d *Dir) IDs() []string {
	out := make([]string, len(d.ids))
	copy(out, d.ids)
	return out
}

// Path returns the file path of a chip.
func (d *Dir) Path(id string) (string, bool) {
	p, ok := d.paths[id]
	return p, ok
}

// Load decodes a chip.
func (d *Dir) Load(id string) (gocv.Mat, error) {
	path, ok := d.paths[id]
	if !ok {
		return gocv.NewMat(), fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return LoadFile(path)
}

// Memory holds decoded chips in memory. It is used for synthetic data and
// tests.
type Memory struct {
	mats map[string]gocv.Mat
	ids  []string
}

// NewMemory creates an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{mats: make(map[string]gocv.Mat)}
}

// Add stores a copy of img under id.
func (m *Memory) Add(id string, img gocv.Mat) {
	if old, ok := m.mats[id]; ok {
		old.Close()
	} else {
		m.ids = append(m.ids, id)
		sort.Strings(m.ids)
	}
	m.mats[id] = img.Clone()
}

// IDs returns the stored IDs in sorted order.
func (m *Memory) IDs() []string {
	out := make([]string, len(m.ids))
	copy(out, m.ids)
	return out
}

// Load returns a copy of the stored chip.
func (m *Memory) Load(id string) (gocv.Mat, error) {
	img, ok := m.mats[id]
	if !ok {
		return gocv.NewMat(), fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return img.Clone(), nil
}

// Close releases all stored chips.
func (m *Memory) Close() {
	for id, img := range m.mats {
		img.Close()
		delete(m.mats, id)
	}
	m.ids = nil
}

// SupportedFormats returns the image extensions chips may use.
func SupportedFormats() []string {
	return []string{".bmp", ".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// ListImages returns the supported image files in dir, sorted. A path naming
// a single file is returned as is.
func ListImages(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && IsSupportedFormat(e.Name()) {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
