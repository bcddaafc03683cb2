package board

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"tabletop-tracker/internal/geometry"
)

// Warp perspective corrects img so the quadrilateral corners becomes an
// upright rectangle. The caller owns the result.
func Warp(img gocv.Mat, corners [4]image.Point) (gocv.Mat, error) {
	ordered, err := geometry.OrderCorners(corners[:])
	if err != nil {
		return gocv.NewMat(), err
	}
	dest := geometry.WarpRectangle(ordered)
	size := dest[geometry.BottomRight]
	if size.X <= 0 || size.Y <= 0 {
		return gocv.NewMat(), fmt.Errorf("degenerate board corners %v", ordered)
	}

	src := gocv.NewPoint2fVectorFromPoints(toPoint2f(ordered))
	defer src.Close()
	dst := gocv.NewPoint2fVectorFromPoints(toPoint2f(dest))
	defer dst.Close()

	transform := gocv.GetPerspectiveTransform2f(src, dst)
	defer transform.Close()

	out := gocv.NewMat()
	gocv.WarpPerspective(img, &out, transform, size)
	return out, nil
}

func toPoint2f(points [4]image.Point) []gocv.Point2f {
	out := make([]gocv.Point2f, len(points))
	for i, p := range points {
		out[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return out
}
