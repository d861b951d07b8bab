// Package convert rewrites source imagery into the format chips are read
// from.
package convert

import (
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"chipprep/internal/monitoring"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// IsTIFF reports whether path has a TIFF extension.
func IsTIFF(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return true
	}
	return false
}

// BMPPath returns the output path for a TIFF source.
func BMPPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".bmp"
}

// FileToBMP decodes one TIFF and writes it next to the source as BMP.
func FileToBMP(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	img, err := tiff.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", path, err)
	}

	out := BMPPath(path)
	if err := writeBMP(out, img); err != nil {
		return "", err
	}
	return out, nil
}

func writeBMP(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := bmp.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// TIFFToBMP converts every TIFF under dir, recursively, to BMP and returns
// the number of files written. With removeSource set each TIFF is deleted
// once its BMP is on disk. Conversion stops at the first failure.
func TIFFToBMP(dir string, removeSource bool) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsTIFF(path) {
			return nil
		}
		out, err := FileToBMP(path)
		if err != nil {
			return err
		}
		n++
		monitoring.Logf("Converted %s -> %s", path, filepath.Base(out))
		if removeSource {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}
		return nil
	})
	return n, err
}
