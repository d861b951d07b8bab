// Package config holds the recognized options of the chip preparation
// pipeline and their defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Augmentation modes.
const (
	ModeCrop       = "crop"
	ModeCropAffine = "crop_affine"
)

// Axis pairing for the affine warp.
const (
	// AxesPerAxis pairs x with image width and y with image height.
	AxesPerAxis = "per_axis"
	// AxesLegacy reproduces historical runs: rotation centre, x translation
	// and both clamp bounds are taken from the image height.
	AxesLegacy = "legacy"
)

// Pixel normalization modes.
const (
	NormUnit        = "unit"        // divide by 255
	NormStandardize = "standardize" // (v - RGBMean) / RGBStd in 0-255 units
	NormHSV         = "hsv"         // BGR->HSV then (v - HSVMean) / HSVStd
)

// Label row layouts.
const (
	LabelsXYXY = "xyxy"
	LabelsXYWH = "xywh"
)

// AffineConfig holds the sampling ranges of the random affine warp.
type AffineConfig struct {
	Degrees     [2]float64 `json:"degrees"`
	Translate   [2]float64 `json:"translate"` // fraction of the image side
	Scale       [2]float64 `json:"scale"`
	Shear       [2]float64 `json:"shear"`        // degrees
	RightAngles []float64  `json:"right_angles"` // one is added to each sampled angle
}

// Config is the configuration surface of the pipeline.
type Config struct {
	TargetSize     int    `json:"target_size"`
	BatchSize      int    `json:"batch_size"`
	Mode           string `json:"mode"`
	CropsPerChip   int    `json:"crops_per_chip"`
	LetterboxSmall bool   `json:"letterbox_small"`
	ChipExt        string `json:"chip_ext"`

	Affine AffineConfig `json:"affine"`
	Axes   string       `json:"axes"`

	MinCropBox float64 `json:"min_crop_box"`
	MinWarpBox float64 `json:"min_warp_box"`

	FlipLR          bool    `json:"flip_lr"`
	FlipUD          bool    `json:"flip_ud"`
	FlipProbability float64 `json:"flip_probability"`

	Normalization string     `json:"normalization"`
	RGBMean       [3]float64 `json:"rgb_mean"`
	RGBStd        [3]float64 `json:"rgb_std"`
	HSVMean       [3]float64 `json:"hsv_mean"`
	HSVStd        [3]float64 `json:"hsv_std"`

	LabelFormat string `json:"label_format"`
	FailFast    bool   `json:"fail_fast"`
}

// Default returns the configuration used for xView training chips.
func Default() Config {
	return Config{
		TargetSize:   416,
		BatchSize:    1,
		Mode:         ModeCrop,
		CropsPerChip: 1,
		ChipExt:      ".bmp",

		// Crop pipelines warp gently; translate is half the generic default.
		Affine: AffineConfig{
			Degrees:     [2]float64{-10, 10},
			Translate:   [2]float64{0.05, 0.05},
			Scale:       [2]float64{0.9, 1.1},
			Shear:       [2]float64{-2, 2},
			RightAngles: []float64{-180, -90, 0, 90},
		},
		Axes: AxesPerAxis,

		// Objects must be wider and taller than these (pixels)
		MinCropBox: 3,
		MinWarpBox: 5,

		FlipLR:          true,
		FlipUD:          true,
		FlipProbability: 0.5,

		Normalization: NormUnit,
		// Measured over the xView training chips with cmd/chipstats
		RGBMean: [3]float64{60.134, 49.697, 40.746},
		RGBStd:  [3]float64{29.99, 24.498, 22.046},
		HSVMean: [3]float64{24.956, 91.347, 61.362},
		HSVStd:  [3]float64{15.825, 26.98, 29.618},

		LabelFormat: LabelsXYXY,
	}
}

// WithBatchSize returns a copy with the batch size set.
func (c Config) WithBatchSize(n int) Config {
	c.BatchSize = n
	return c
}

// WithMode returns a copy with the augmentation mode set.
func (c Config) WithMode(mode string) Config {
	c.Mode = mode
	return c
}

// WithLegacyBehavior returns a copy that reproduces historical training runs:
// cross-wired axes and flips applied to every sample.
func (c Config) WithLegacyBehavior() Config {
	c.Axes = AxesLegacy
	c.FlipProbability = 1
	return c
}

// Validate checks option values and their combinations.
func (c Config) Validate() error {
	if c.TargetSize <= 0 {
		return fmt.Errorf("target_size must be positive, got %d", c.TargetSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.CropsPerChip <= 0 {
		return fmt.Errorf("crops_per_chip must be positive, got %d", c.CropsPerChip)
	}
	switch c.Mode {
	case ModeCrop, ModeCropAffine:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch c.Axes {
	case AxesPerAxis, AxesLegacy:
	default:
		return fmt.Errorf("unknown axes %q", c.Axes)
	}
	switch c.Normalization {
	case NormUnit, NormStandardize, NormHSV:
	default:
		return fmt.Errorf("unknown normalization %q", c.Normalization)
	}
	switch c.LabelFormat {
	case LabelsXYXY, LabelsXYWH:
	default:
		return fmt.Errorf("unknown label_format %q", c.LabelFormat)
	}
	if c.FlipProbability < 0 || c.FlipProbability > 1 {
		return fmt.Errorf("flip_probability must be in [0, 1], got %g", c.FlipProbability)
	}
	if c.MinCropBox < 0 || c.MinWarpBox < 0 {
		return fmt.Errorf("minimum box sizes must not be negative")
	}
	for name, r := range map[string][2]float64{
		"degrees": c.Affine.Degrees,
		"scale":   c.Affine.Scale,
		"shear":   c.Affine.Shear,
	} {
		if r[0] > r[1] {
			return fmt.Errorf("affine.%s range is inverted: %v", name, r)
		}
	}
	if c.Affine.Translate[0] < 0 || c.Affine.Translate[1] < 0 {
		return fmt.Errorf("affine.translate fractions must not be negative")
	}
	if c.Affine.Scale[0] <= 0 {
		return fmt.Errorf("affine.scale must be positive, got %v", c.Affine.Scale)
	}
	if len(c.Affine.RightAngles) == 0 {
		return fmt.Errorf("affine.right_angles must hold at least one angle")
	}
	if c.Normalization == NormStandardize || c.Normalization == NormHSV {
		std := c.RGBStd
		if c.Normalization == NormHSV {
			std = c.HSVStd
		}
		for i, s := range std {
			if s <= 0 {
				return fmt.Errorf("std for channel %d must be positive", i)
			}
		}
	}
	return nil
}

// Load reads a JSON config file. Fields omitted from the file keep their
// Default values, so partial configs are safe.
func Load(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as indented JSON.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
