// Package threshold binarizes grayscale images for contour extraction.
package threshold

import (
	"fmt"
	"image"

	"tabletop-tracker/internal/processing/histogram"

	"gocv.io/x/gocv"
)

// Mode selects a binarization strategy.
type Mode int

const (
	// Otsu blurs 2×2 and applies a global optimal threshold.
	Otsu Mode = iota
	// Adaptive applies a gaussian-weighted local threshold (block 11, C 2).
	Adaptive
	// Auto runs Canny with thresholds derived from the histogram range.
	Auto
	// BrightRoom runs Canny tuned for well-lit scenes.
	BrightRoom
	// DarkRoom runs Canny tuned for dim scenes.
	DarkRoom
)

// Priority is the order modes are tried in when searching for corner markers.
var Priority = []Mode{Otsu, Adaptive, Auto, BrightRoom, DarkRoom}

func (m Mode) String() string {
	switch m {
	case Otsu:
		return "OTSU"
	case Adaptive:
		return "ADAPTIVE"
	case Auto:
		return "AUTO"
	case BrightRoom:
		return "BRIGHT_ROOM"
	case DarkRoom:
		return "DARK_ROOM"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Apply binarizes a single-channel image. The caller owns the result.
func Apply(src gocv.Mat, mode Mode) gocv.Mat {
	dst := gocv.NewMat()

	switch mode {
	case Otsu:
		blurred := gocv.NewMat()
		defer blurred.Close()
		gocv.Blur(src, &blurred, image.Point{X: 2, Y: 2})
		gocv.Threshold(blurred, &dst, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	case Adaptive:
		gocv.AdaptiveThreshold(src, &dst, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, 11, 2)
	case Auto:
		lo, hi := AutoCannyThresholds(src)
		gocv.Canny(src, &dst, lo, hi)
	case BrightRoom:
		gocv.Canny(src, &dst, 40, 70)
	case DarkRoom:
		gocv.Canny(src, &dst, 100, 300)
	default:
		gocv.Canny(src, &dst, 60, 120)
	}

	return dst
}

// OtsuBinary applies a plain global optimal threshold without blurring.
func OtsuBinary(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Threshold(src, &dst, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	return dst
}

// AdaptiveBinary applies the Adaptive mode without going through Apply.
func AdaptiveBinary(src gocv.Mat) gocv.Mat {
	return Apply(src, Adaptive)
}

// AutoCannyThresholds centres a Canny threshold pair on the midpoint of the
// darkest and brightest populated histogram bins.
func AutoCannyThresholds(src gocv.Mat) (lo, hi float32) {
	minIndex, maxIndex, ok := histogram.Range(histogram.Compute(src, 256))
	if !ok {
		minIndex, maxIndex = 255, 0
	}
	mean := float32(minIndex+maxIndex) / 2
	return mean * 2 / 3, mean * 4 / 3
}
