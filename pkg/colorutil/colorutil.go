// Package colorutil provides shared color utilities for chip statistics and
// normalization.
package colorutil

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RGBToHSV converts RGB (0-255) to HSV (OpenCV convention: H 0-180, S 0-255, V 0-255).
func RGBToHSV(r, g, b float64) (h, s, v float64) {
	r /= 255.0
	g /= 255.0
	b /= 255.0

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	diff := maxC - minC

	v = maxC * 255.0

	if maxC != 0 {
		s = (diff / maxC) * 255.0
	}

	switch {
	case diff == 0:
		h = 0
	case maxC == r:
		h = 60 * math.Mod((g-b)/diff, 6)
	case maxC == g:
		h = 60 * ((b-r)/diff + 2)
	default:
		h = 60 * ((r-g)/diff + 4)
	}
	if h < 0 {
		h += 360
	}

	return h / 2, s, v
}

// ChannelStats holds the mean and standard deviation of one channel.
type ChannelStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Accumulator merges per-chip channel samples into running mean and
// variance using the pairwise update of Chan et al., so whole datasets never
// need to be held in memory.
type Accumulator struct {
	n    [3]float64
	mean [3]float64
	m2   [3]float64
}

// Add merges one chunk of samples for channel c.
func (a *Accumulator) Add(c int, values []float64) {
	if len(values) == 0 {
		return
	}
	nb := float64(len(values))
	var meanB, m2B float64
	if len(values) == 1 {
		meanB = values[0]
	} else {
		var varB float64
		meanB, varB = stat.MeanVariance(values, nil)
		m2B = varB * (nb - 1)
	}

	na := a.n[c]
	n := na + nb
	delta := meanB - a.mean[c]
	a.mean[c] += delta * nb / n
	a.m2[c] += m2B + delta*delta*na*nb/n
	a.n[c] = n
}

// Count returns the number of samples seen on channel c.
func (a *Accumulator) Count(c int) float64 {
	return a.n[c]
}

// Stats returns the population mean and standard deviation per channel.
func (a *Accumulator) Stats() [3]ChannelStats {
	var out [3]ChannelStats
	for c := range out {
		if a.n[c] == 0 {
			continue
		}
		out[c] = ChannelStats{
			Mean: a.mean[c],
			Std:  math.Sqrt(a.m2[c] / a.n[c]),
		}
	}
	return out
}
