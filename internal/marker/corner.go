package marker

import (
	"errors"
	"image"
	"math"

	"gocv.io/x/gocv"

	"tabletop-tracker/internal/geometry"
	"tabletop-tracker/internal/processing/contours"
	"tabletop-tracker/internal/processing/filters"
	"tabletop-tracker/internal/processing/threshold"
	"tabletop-tracker/internal/processing/tier"
)

// a search window with more contours than this is treated as noise
const maxCornerContours = 8

// DefaultMarker is the six-vertex "L" shaped board corner marker.
type DefaultMarker struct {
	id int
}

func NewDefaultMarker(id int) *DefaultMarker {
	return &DefaultMarker{id: id}
}

func (m *DefaultMarker) ID() int { return m.id }

func (m *DefaultMarker) PreferredTier() tier.Tier { return tier.Original }

func (m *DefaultMarker) FindInImage(img gocv.Mat) (*Result, error) {
	return findCornerInImage(m, img)
}

func (m *DefaultMarker) FindAllInImage(img gocv.Mat) ([]Result, error) {
	return all(m.FindInImage(img))
}

// FindInThresholdedImage searches a doubled copy of the window so thin
// marker strokes survive polygon approximation.
func (m *DefaultMarker) FindInThresholdedImage(binary gocv.Mat) (*Result, error) {
	if binary.Empty() {
		return nil, errors.New("thresholded image is empty")
	}
	original := imageSize(binary)

	doubled := gocv.NewMat()
	defer doubled.Close()
	gocv.Resize(binary, &doubled, original.Mul(2), 0, 0, gocv.InterpolationLinear)

	size := imageSize(doubled)
	minArea := float64(size.X) * 0.1 * float64(size.Y) * 0.1
	maxArea := float64(size.X) * 0.5 * float64(size.Y) * 0.5

	found := contours.FindSimple(doubled)
	if len(found) == 0 || len(found) > maxCornerContours {
		return nil, nil
	}

	for _, c := range found {
		approx := contours.Approx(c, 0.03)
		if !isDefaultCorner(c, approx, minArea, maxArea, size) {
			continue
		}
		halved := make([]image.Point, len(approx))
		for i, p := range approx {
			halved[i] = p.Div(2)
		}
		r := NewResult(m.id, halved, original)
		return &r, nil
	}
	return nil, nil
}

func isDefaultCorner(c, approx []image.Point, minArea, maxArea float64, size image.Point) bool {
	if len(approx) != 6 {
		return false
	}

	area := contours.Area(c)
	if area < minArea || area > maxArea {
		return false
	}

	// an L covers between half and three quarters of its hull
	hull, err := contours.ConvexHull(c)
	if err != nil {
		return false
	}
	hullArea := contours.Area(hull)
	if area < hullArea*2/4 || area > hullArea*3/4 {
		return false
	}

	shortest, longest := 0, 0
	for i := range approx {
		if edgeLength(approx, i) < edgeLength(approx, shortest) {
			shortest = i
		}
		if edgeLength(approx, i) > edgeLength(approx, longest) {
			longest = i
		}
	}
	if edgeLength(approx, shortest) > edgeLength(approx, longest)*0.6 {
		return false
	}
	if !sameLength(approx, shortest+1, shortest+2, 0.8) {
		return false
	}
	if !sameLength(approx, shortest-1, shortest-2, 0.7) {
		return false
	}

	return !touchesBorder(c, size)
}

func edgeLength(c []image.Point, i int) float64 {
	n := len(c)
	return geometry.PixelDistance(c[((i%n)+n)%n], c[((i+1)%n+n)%n])
}

func sameLength(c []image.Point, i, j int, deviation float64) bool {
	a, b := edgeLength(c, i), edgeLength(c, j)
	return min(a, b) >= max(a, b)*deviation
}

// TriangleMarker is a right isosceles triangle board corner marker.
type TriangleMarker struct {
	id int
}

func NewTriangleMarker(id int) *TriangleMarker {
	return &TriangleMarker{id: id}
}

func (m *TriangleMarker) ID() int { return m.id }

func (m *TriangleMarker) PreferredTier() tier.Tier { return tier.Original }

func (m *TriangleMarker) FindInImage(img gocv.Mat) (*Result, error) {
	return findCornerInImage(m, img)
}

func (m *TriangleMarker) FindAllInImage(img gocv.Mat) ([]Result, error) {
	return all(m.FindInImage(img))
}

func (m *TriangleMarker) FindInThresholdedImage(binary gocv.Mat) (*Result, error) {
	if binary.Empty() {
		return nil, errors.New("thresholded image is empty")
	}
	size := imageSize(binary)
	minArea := float64(size.X) * 0.1 * float64(size.Y) * 0.1
	maxArea := float64(size.X) * 0.5 * float64(size.Y) * 0.5

	found := contours.FindSimple(binary)
	if len(found) == 0 || len(found) > maxCornerContours {
		return nil, nil
	}

	for _, c := range found {
		approx := contours.Approx(c, 0.04)
		if !isTriangleCorner(c, approx, minArea, maxArea) {
			continue
		}
		r := NewResult(m.id, approx, size)
		return &r, nil
	}
	return nil, nil
}

func isTriangleCorner(c, approx []image.Point, minArea, maxArea float64) bool {
	if len(approx) != 3 {
		return false
	}

	area := contours.Area(c)
	if area < minArea || area > maxArea {
		return false
	}

	var count45, count90 int
	for i := 2; i < 5; i++ {
		cosine := math.Abs(geometry.Cosine(
			geometry.FromImage(approx[i%3]),
			geometry.FromImage(approx[(i-2)%3]),
			geometry.FromImage(approx[(i-1)%3]),
		))
		if math.Abs(math.Cos(math.Pi/4)-cosine) <= 0.2 {
			count45++
		}
		if math.Abs(math.Cos(math.Pi/2)-cosine) <= 0.3 {
			count90++
		}
	}
	return count45 == 2 && count90 == 1
}

func findCornerInImage(m Marker, img gocv.Mat) (*Result, error) {
	gray, err := filters.Grayscale(img)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	binary := threshold.Apply(gray, threshold.Otsu)
	defer binary.Close()

	return m.FindInThresholdedImage(binary)
}

func all(r *Result, err error) ([]Result, error) {
	if err != nil || r == nil {
		return nil, err
	}
	return []Result{*r}, nil
}
