package filters

import (
	"image"

	"gocv.io/x/gocv"
)

// Blur applies a normalized box filter of size k×k.
func Blur(src gocv.Mat, k int) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Blur(src, &dst, image.Point{X: k, Y: k})
	return dst
}

// Clean dilates then erodes a binary image with a k×k rectangle to close
// small gaps left by thresholding.
func Clean(src gocv.Mat, k int) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: k, Y: k})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(src, &dilated, kernel)

	dst := gocv.NewMat()
	gocv.Erode(dilated, &dst, kernel)
	return dst
}

// Trim returns a view of src with fraction of the width and height removed
// from every side. The view shares memory with src and must be closed.
func Trim(src gocv.Mat, fraction float64) gocv.Mat {
	dx := int(float64(src.Cols()) * fraction)
	dy := int(float64(src.Rows()) * fraction)
	rect := image.Rect(dx, dy, src.Cols()-dx, src.Rows()-dy)
	if rect.Empty() {
		rect = image.Rect(0, 0, src.Cols(), src.Rows())
	}
	return src.Region(rect)
}
