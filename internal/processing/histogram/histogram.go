// Package histogram computes luminance histograms and the brightness
// statistics derived from them.
package histogram

import (
	"gocv.io/x/gocv"
)

// Compute returns the bins-bucket histogram of a single-channel 8-bit image
// over the value range [0, 256).
func Compute(src gocv.Mat, bins int) []float64 {
	hist := gocv.NewMat()
	defer hist.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.CalcHist([]gocv.Mat{src}, []int{0}, mask, &hist, []int{bins}, []float64{0, 256}, false)

	out := make([]float64, bins)
	for i := range out {
		out[i] = float64(hist.GetFloatAt(i, 0))
	}
	return out
}

// Level is the pixel-weighted average bin index, Σ hist[i]·i / pixels.
// For a 256-bin histogram it is the mean brightness in [0, 255]; for a binary
// mask it is 255 times the fraction of set pixels.
func Level(hist []float64, pixels int) float64 {
	if pixels <= 0 {
		return 0
	}
	level := 0.0
	for i, count := range hist {
		level += count * float64(i) / float64(pixels)
	}
	return level
}

// Range returns the lowest and highest non-empty bins. ok is false for an
// empty histogram.
func Range(hist []float64) (lo, hi int, ok bool) {
	lo, hi = len(hist)-1, 0
	for i, count := range hist {
		if count != 0 {
			lo = min(lo, i)
			hi = max(hi, i)
			ok = true
		}
	}
	return lo, hi, ok
}

// ImageLevel is Level applied to the 256-bin histogram of src.
func ImageLevel(src gocv.Mat) float64 {
	return Level(Compute(src, 256), src.Rows()*src.Cols())
}
