package filters

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Grayscale returns a single-channel copy of src. One-channel input is
// copied unchanged. The caller owns the result.
func Grayscale(src gocv.Mat) (gocv.Mat, error) {
	dst := gocv.NewMat()

	switch src.Channels() {
	case 1:
		src.CopyTo(&dst)
	case 3:
		gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToGray)
	default:
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("unsupported channel count for grayscale conversion: %d", src.Channels())
	}

	return dst, nil
}
