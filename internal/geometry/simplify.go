package geometry

import (
	"image"

	"github.com/golang/geo/r2"
)

// DefaultLookahead is the contour index distance used by Simplify.
const DefaultLookahead = 8

// Simplify reduces a dense (one point per pixel) closed contour to its
// corner-like vertices.
//
// A chord of lookahead points is slid along the contour and compared against
// the direction of the chord taken right after the last emitted vertex. When
// the two differ by more than lookahead/2 pixels the midpoint of the current
// chord is emitted as a vertex. The first contour point is always kept.
func Simplify(contour []image.Point, lookahead int) []image.Point {
	n := len(contour)
	if n == 0 {
		return nil
	}
	if lookahead < 2 {
		lookahead = DefaultLookahead
	}

	half := lookahead / 2
	maxDeviation := float64(lookahead) / 2

	result := []image.Point{contour[0]}

	var comparison r2.Point
	haveComparison := false
	comparisonEnd := lookahead

	for i := 0; i < n-lookahead; i++ {
		pt1 := FromImage(contour[i])
		pt2 := FromImage(contour[(i+lookahead)%n])
		direction := pt2.Sub(pt1)

		if !haveComparison {
			comparison = FromImage(contour[comparisonEnd%n]).Sub(pt1)
			if length := comparison.Norm(); length > 0 {
				comparison = comparison.Mul(direction.Norm() / length)
			}
			haveComparison = true
		}

		if LineLength(direction, comparison) > maxDeviation {
			result = append(result, contour[(i+half)%n])

			comparisonEnd = i + lookahead
			i += half
			haveComparison = false
		}
	}

	return result
}
