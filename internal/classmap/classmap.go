// Package classmap remaps sparse xView type codes onto the dense, zero-based
// class indices used by the detector's output layer.
package classmap

import (
	"errors"
	"fmt"

	"chipprep/pkg/geometry"
)

// Dropped marks a code that exists in the taxonomy but is excluded from
// training.
const Dropped = -1

// NumClasses is the size of the dense index space.
const NumClasses = 60

// MaxCode is the largest code the lookup table covers.
const MaxCode = len(table) - 1

// ErrUnknownCode is returned for codes outside [0, MaxCode].
var ErrUnknownCode = errors.New("class code out of range")

// table maps xView type_id (index) to dense index, rows of ten codes.
var table = [...]int{
	-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, // 0-9
	-1, 0, 1, 2, -1, 3, -1, 4, 5, 6, // 10-19
	7, 8, -1, 9, 10, 11, 12, 13, 14, 15, // 20-29
	-1, -1, 16, 17, 18, 19, 20, 21, 22, -1, // 30-39
	23, 24, 25, -1, 26, 27, -1, 28, -1, 29, // 40-49
	30, 31, 32, 33, 34, 35, 36, 37, -1, 38, // 50-59
	39, 40, 41, 42, 43, 44, 45, -1, -1, -1, // 60-69
	-1, 46, 47, 48, 49, -1, 50, 51, -1, 52, // 70-79
	-1, -1, -1, 53, 54, -1, 55, -1, -1, 56, // 80-89
	-1, 57, -1, 58, 59, // 90-94
}

// Remap returns the dense index for code, or Dropped if the code is not
// trained on.
func Remap(code int) (int, error) {
	if code < 0 || code > MaxCode {
		return Dropped, fmt.Errorf("%w: %d", ErrUnknownCode, code)
	}
	return table[code], nil
}

// Valid reports whether code maps to a dense index.
func Valid(code int) bool {
	dense, err := Remap(code)
	return err == nil && dense != Dropped
}

// Inverse returns the sparse code for a dense index.
func Inverse(dense int) (int, bool) {
	if dense < 0 || dense >= NumClasses {
		return 0, false
	}
	for code, d := range table {
		if d == dense {
			return code, true
		}
	}
	return 0, false
}

// Table returns a copy of the lookup table.
func Table() []int {
	out := make([]int, len(table))
	copy(out, table[:])
	return out
}

// RemapBoxes rewrites box classes to dense indices and drops boxes whose code
// is excluded. The input slice is not modified.
func RemapBoxes(boxes []geometry.Box) ([]geometry.Box, error) {
	out := make([]geometry.Box, 0, len(boxes))
	for _, b := range boxes {
		dense, err := Remap(b.Class)
		if err != nil {
			return nil, err
		}
		if dense == Dropped {
			continue
		}
		b.Class = dense
		out = append(out, b)
	}
	return out, nil
}
