// Package contours wraps gocv contour extraction and returns plain Go
// slices so callers never juggle native point vectors.
package contours

import (
	"image"

	"gocv.io/x/gocv"
)

// Hierarchy is one contour's tree links: next, previous, first child, parent.
// Missing links are -1.
type Hierarchy [4]int

// Find returns every contour of a binary image with all boundary points kept.
func Find(binary gocv.Mat) [][]image.Point {
	found := gocv.FindContours(binary, gocv.RetrievalList, gocv.ChainApproxNone)
	defer found.Close()
	return found.ToPoints()
}

// FindSimple returns every contour with straight runs compressed to endpoints.
func FindSimple(binary gocv.Mat) [][]image.Point {
	found := gocv.FindContours(binary, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer found.Close()
	return found.ToPoints()
}

// FindWithHierarchy returns the full contour tree of a binary image.
func FindWithHierarchy(binary gocv.Mat) ([][]image.Point, []Hierarchy) {
	hierarchy := gocv.NewMat()
	defer hierarchy.Close()

	found := gocv.FindContoursWithParams(binary, &hierarchy, gocv.RetrievalTree, gocv.ChainApproxNone)
	defer found.Close()

	points := found.ToPoints()
	links := make([]Hierarchy, len(points))
	for i := range links {
		links[i] = Hierarchy{-1, -1, -1, -1}
		if hierarchy.Empty() || i >= hierarchy.Cols() {
			continue
		}
		v := hierarchy.GetVeciAt(0, i)
		for j := 0; j < 4 && j < len(v); j++ {
			links[i][j] = int(v[j])
		}
	}
	return points, links
}

// Approx simplifies a closed contour with an epsilon of fraction times its
// perimeter.
func Approx(contour []image.Point, fraction float64) []image.Point {
	if len(contour) < 3 {
		return contour
	}
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()

	epsilon := fraction * gocv.ArcLength(pv, true)
	approx := gocv.ApproxPolyDP(pv, epsilon, true)
	defer approx.Close()
	return approx.ToPoints()
}

// ArcLength is the perimeter of contour, optionally closing it.
func ArcLength(contour []image.Point, closed bool) float64 {
	if len(contour) < 2 {
		return 0
	}
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()
	return gocv.ArcLength(pv, closed)
}

// ConvexHull returns the hull vertices of contour.
func ConvexHull(contour []image.Point) ([]image.Point, error) {
	if len(contour) < 3 {
		return contour, nil
	}
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()

	hull := gocv.NewMat()
	defer hull.Close()
	if err := gocv.ConvexHull(pv, &hull, false, true); err != nil {
		return nil, err
	}

	out := gocv.NewPointVectorFromMat(hull)
	defer out.Close()
	return out.ToPoints(), nil
}

// Area is the unsigned area of a closed contour.
func Area(contour []image.Point) float64 {
	if len(contour) < 3 {
		return 0
	}
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()
	return gocv.ContourArea(pv)
}

// MinAreaRect returns the rotated rectangle of minimum area enclosing contour.
func MinAreaRect(contour []image.Point) gocv.RotatedRect {
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()
	return gocv.MinAreaRect(pv)
}

// BoundingRect returns the upright bounding box of contour.
func BoundingRect(contour []image.Point) image.Rectangle {
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()
	return gocv.BoundingRect(pv)
}

// Largest returns the contour with the biggest area, or nil.
func Largest(all [][]image.Point) []image.Point {
	var best []image.Point
	bestArea := -1.0
	for _, c := range all {
		if a := Area(c); a > bestArea {
			best, bestArea = c, a
		}
	}
	return best
}
