// Package geometry holds the point, angle and contour math shared by the
// marker matcher and the board recognizer.
package geometry

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
)

// FromImage converts a pixel coordinate to a float vector.
func FromImage(p image.Point) r2.Point {
	return r2.Point{X: float64(p.X), Y: float64(p.Y)}
}

// LineLength is the Euclidean distance between a and b.
func LineLength(a, b r2.Point) float64 {
	return a.Sub(b).Norm()
}

// PixelDistance is LineLength for pixel coordinates.
func PixelDistance(a, b image.Point) float64 {
	return LineLength(FromImage(a), FromImage(b))
}

// TurnAngle returns the angle from (prev-cur) to (next-cur), normalized to [0, 2π).
func TurnAngle(prev, cur, next r2.Point) float64 {
	v1 := prev.Sub(cur)
	v2 := next.Sub(cur)
	return positiveMod(math.Atan2(v2.Y, v2.X)-math.Atan2(v1.Y, v1.X), 2*math.Pi)
}

// AngleDifference returns a1-a2 wrapped to [-π, π).
func AngleDifference(a1, a2 float64) float64 {
	return positiveMod(a1-a2+math.Pi, 2*math.Pi) - math.Pi
}

// AxisAngle is the angle of the vector p2->p1 against the x axis.
func AxisAngle(p1, p2 r2.Point) float64 {
	return math.Atan2(p1.Y-p2.Y, p1.X-p2.X)
}

// Cosine returns the cosine of the angle at p1 spanned by p0 and p2.
func Cosine(p0, p1, p2 r2.Point) float64 {
	d1 := p0.Sub(p1)
	d2 := p2.Sub(p1)
	return d1.Dot(d2) / math.Sqrt(d1.Dot(d1)*d2.Dot(d2)+1e-10)
}

// MaxCosine returns the largest absolute interior-angle cosine of a closed
// polygon. Values near zero mean all corners are close to right angles.
func MaxCosine(contour []image.Point) float64 {
	n := len(contour)
	maxCosine := 0.0
	for i := 2; i < n+2; i++ {
		c := math.Abs(Cosine(
			FromImage(contour[i%n]),
			FromImage(contour[(i-1)%n]),
			FromImage(contour[(i-2)%n]),
		))
		maxCosine = math.Max(maxCosine, c)
	}
	return maxCosine
}

// SignedArea is the oriented shoelace area of a closed contour. The sign
// flips with the traversal direction.
func SignedArea(contour []image.Point) float64 {
	n := len(contour)
	if n < 3 {
		return 0
	}
	area := 0.0
	prev := contour[n-1]
	for _, p := range contour {
		area += float64(prev.X)*float64(p.Y) - float64(prev.Y)*float64(p.X)
		prev = p
	}
	return area * 0.5
}

// Orientation is -1 for a negative signed area and 1 otherwise.
func Orientation(contour []image.Point) int {
	if SignedArea(contour) < 0 {
		return -1
	}
	return 1
}

// Center is the mean of the contour vertices.
func Center(contour []image.Point) r2.Point {
	if len(contour) == 0 {
		return r2.Point{}
	}
	var sx, sy float64
	for _, p := range contour {
		sx += float64(p.X)
		sy += float64(p.Y)
	}
	n := float64(len(contour))
	return r2.Point{X: sx / n, Y: sy / n}
}

// Translate shifts every point by offset.
func Translate(contour []image.Point, offset image.Point) []image.Point {
	out := make([]image.Point, len(contour))
	for i, p := range contour {
		out[i] = p.Add(offset)
	}
	return out
}

// Bounds returns the extreme coordinates of the contour. Max is inclusive.
func Bounds(contour []image.Point) image.Rectangle {
	if len(contour) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: contour[0], Max: contour[0]}
	for _, p := range contour[1:] {
		r.Min.X = min(r.Min.X, p.X)
		r.Min.Y = min(r.Min.Y, p.Y)
		r.Max.X = max(r.Max.X, p.X)
		r.Max.Y = max(r.Max.Y, p.Y)
	}
	return r
}

func positiveMod(a, m float64) float64 {
	r := math.Mod(a, m)
	if r < 0 {
		r += m
	}
	return r
}
