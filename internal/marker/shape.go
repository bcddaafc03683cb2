package marker

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"tabletop-tracker/internal/geometry"
	"tabletop-tracker/internal/processing/contours"
	"tabletop-tracker/internal/processing/filters"
	"tabletop-tracker/internal/processing/threshold"
	"tabletop-tracker/internal/processing/tier"
)

const (
	// unit distances are floored before comparing ratios
	minUnitDistance = 0.1
	maxDrift        = 4
)

// ShapeOptions tunes a ShapeMarker.
type ShapeOptions struct {
	// DistanceTolerance is the accepted edge length ratio minus one.
	DistanceTolerance float64 `mapstructure:"distanceTolerance"`
	// AngleTolerance is the accepted turn angle error in radians.
	AngleTolerance float64 `mapstructure:"angleTolerance"`
	// FineGrained rejects candidates whose skipped vertices form spikes.
	FineGrained    bool    `mapstructure:"fineGrained"`
	SpikeTolerance float64 `mapstructure:"spikeTolerance"`
	// Arc length bounds in multiples of max(image width, image height).
	MinArcLength float64 `mapstructure:"minArclength"`
	MaxArcLength float64 `mapstructure:"maxArclength"`
	// Area bounds as fractions of the image area.
	MinArea float64 `mapstructure:"minArea"`
	MaxArea float64 `mapstructure:"maxArea"`
}

func DefaultShapeOptions() ShapeOptions {
	return ShapeOptions{
		DistanceTolerance: 0.35,
		AngleTolerance:    0.25,
		FineGrained:       true,
		SpikeTolerance:    0.25,
		MinArcLength:      0.1,
		MaxArcLength:      100.0,
		MinArea:           0.0025,
		MaxArea:           0.9,
	}
}

type edge struct {
	length float64
	unit   float64
}

// ShapeMarker matches contours against a reference polygon independent of
// start vertex, rotation, traversal direction and uniform scale.
type ShapeMarker struct {
	id   int
	opts ShapeOptions

	contour     []image.Point
	arcLength   float64
	orientation int
	center      r2.Point

	// indexed by direction: 0 walks backwards, 1 forwards
	distanceMap [2][]edge
	angleMap    [2][]float64
}

// NewShapeMarker builds a marker from a reference polygon of corner vertices.
func NewShapeMarker(id int, contour []image.Point, opts ShapeOptions) (*ShapeMarker, error) {
	if len(contour) < 3 {
		return nil, fmt.Errorf("shape marker %d: reference contour needs at least 3 points, got %d", id, len(contour))
	}
	arcLength := contours.ArcLength(contour, true)
	if arcLength == 0 {
		return nil, fmt.Errorf("shape marker %d: reference contour has zero length", id)
	}

	m := &ShapeMarker{
		id:          id,
		opts:        opts,
		contour:     append([]image.Point(nil), contour...),
		arcLength:   arcLength,
		orientation: geometry.Orientation(contour),
		center:      geometry.Center(contour),
	}
	m.distanceMap = [2][]edge{distanceMap(contour, -1, nil), distanceMap(contour, 1, nil)}
	m.angleMap = [2][]float64{angleMap(contour, -1), angleMap(contour, 1)}
	return m, nil
}

// NewShapeMarkerFromImage extracts the reference polygon from the largest
// shape in a marker image.
func NewShapeMarkerFromImage(id int, img gocv.Mat, opts ShapeOptions) (*ShapeMarker, error) {
	gray, err := filters.Grayscale(img)
	if err != nil {
		return nil, fmt.Errorf("shape marker %d: %w", id, err)
	}
	defer gray.Close()

	binary := threshold.OtsuBinary(gray)
	defer binary.Close()

	size := imageSize(binary)
	var inner [][]image.Point
	all := contours.Find(binary)
	for _, c := range all {
		if !touchesBorder(c, size) {
			inner = append(inner, c)
		}
	}
	if len(inner) == 0 {
		inner = all
	}

	largest := contours.Largest(inner)
	if largest == nil {
		return nil, fmt.Errorf("shape marker %d: no contours found in marker image", id)
	}
	return NewShapeMarker(id, contours.Approx(largest, 0.02), opts)
}

func (m *ShapeMarker) ID() int { return m.id }

func (m *ShapeMarker) PreferredTier() tier.Tier { return tier.Medium }

// Contour returns a copy of the reference polygon.
func (m *ShapeMarker) Contour() []image.Point {
	return append([]image.Point(nil), m.contour...)
}

func (m *ShapeMarker) FindInImage(img gocv.Mat) (*Result, error) {
	return first(m.FindAllInImage(img))
}

func (m *ShapeMarker) FindInThresholdedImage(binary gocv.Mat) (*Result, error) {
	return first(m.FindAllInThresholdedImage(binary))
}

// FindAllInImage binarizes img and returns one result per matching contour.
func (m *ShapeMarker) FindAllInImage(img gocv.Mat) ([]Result, error) {
	gray, err := filters.Grayscale(img)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	binary := threshold.OtsuBinary(gray)
	defer binary.Close()

	cleaned := filters.Clean(binary, 3)
	defer cleaned.Close()

	return m.FindAllInThresholdedImage(cleaned)
}

func (m *ShapeMarker) FindAllInThresholdedImage(binary gocv.Mat) ([]Result, error) {
	if binary.Empty() {
		return nil, errors.New("thresholded image is empty")
	}
	size := imageSize(binary)

	var results []Result
	for _, c := range contours.Find(binary) {
		matched, start, ok := m.MatchContour(c, size)
		if !ok {
			continue
		}
		results = append(results, m.result(matched, start, size))
	}
	return results, nil
}

func (m *ShapeMarker) result(matched []image.Point, start int, size image.Point) Result {
	r := NewResult(m.id, matched, size)

	center := geometry.Center(matched)
	contourAngle := geometry.AxisAngle(center, geometry.FromImage(matched[0]))
	markerAngle := geometry.AxisAngle(m.center, geometry.FromImage(m.contour[start]))

	r.Angle = (contourAngle - markerAngle) * 180 / math.Pi
	r.X = center.X / float64(size.X)
	r.Y = center.Y / float64(size.Y)
	return r
}

// MatchContour decides whether contour, found in an image of the given size,
// is an instance of the marker. On success it returns the candidate vertices
// aligned to the reference and the reference vertex matched[0] corresponds to.
func (m *ShapeMarker) MatchContour(contour []image.Point, size image.Point) ([]image.Point, int, bool) {
	longest := float64(max(size.X, size.Y))
	arcLength := contours.ArcLength(contour, true)
	if arcLength < longest*m.opts.MinArcLength || arcLength > longest*m.opts.MaxArcLength {
		return nil, 0, false
	}

	signedArea := geometry.SignedArea(contour)
	orientation := 1
	if signedArea < 0 {
		orientation = -1
	}
	imageArea := float64(size.X * size.Y)
	if area := math.Abs(signedArea); area < imageArea*m.opts.MinArea || area > imageArea*m.opts.MaxArea {
		return nil, 0, false
	}

	approx := geometry.Simplify(contour, geometry.DefaultLookahead)
	if len(approx) < len(m.contour) || len(approx) > 2*len(m.contour) {
		return nil, 0, false
	}

	direction := -1
	if orientation == m.orientation {
		direction = 1
	}

	for start := range m.contour {
		indices := m.matchPoints(approx, start, direction, arcLength)
		if indices == nil {
			continue
		}
		if m.opts.FineGrained && !m.verifyFineGrained(approx, indices, distanceMap(approx, 1, indices)) {
			continue
		}
		matched := make([]image.Point, len(indices))
		for i, idx := range indices {
			matched[i] = approx[idx]
		}
		return matched, start, true
	}
	return nil, 0, false
}

// matchPoints walks the candidate with a three vertex window while stepping
// through the reference from start in the given direction. It returns the
// candidate indices matched to each reference vertex, or nil.
func (m *ShapeMarker) matchPoints(c []image.Point, start, direction int, arcLength float64) []int {
	n := len(c)
	markerLength := len(m.contour)
	dirIndex := 1
	if direction == -1 {
		dirIndex = 0
	}
	distances := m.distanceMap[dirIndex]
	angles := m.angleMap[dirIndex]

	offset := start
	idx1, idx2, idx3 := n-1, 0, 1
	drift := 0
	var matched []int

	for {
		if idx2 >= n || drift > maxDrift || idx3 == idx1 {
			return nil
		}

		p1 := geometry.FromImage(c[idx1%n])
		p2 := geometry.FromImage(c[idx2%n])
		p3 := geometry.FromImage(c[idx3%n])

		markerUnit := max(distances[offset].unit, minUnitDistance)
		contourUnit := max(geometry.LineLength(p2, p3)/arcLength, minUnitDistance)
		ratio := max(markerUnit, contourUnit) / min(markerUnit, contourUnit)

		if ratio-1 <= m.opts.DistanceTolerance {
			delta := geometry.AngleDifference(angles[offset], geometry.TurnAngle(p1, p2, p3))

			if math.Abs(delta) <= m.opts.AngleTolerance {
				matched = append(matched, idx2%n)

				offset = (offset + direction + markerLength) % markerLength
				if offset == start {
					return matched
				}

				idx1, idx2, idx3 = idx2, idx3, idx3+1
				continue
			}
		}

		switch {
		case idx1 < idx2-1:
			idx1++
		case idx2 < idx3-1:
			idx2++
		default:
			idx3++
			drift++
		}
	}
}

// verifyFineGrained checks that the path through vertices skipped between
// two matched vertices is close in length to the straight edge between them.
func (m *ShapeMarker) verifyFineGrained(c []image.Point, indices []int, edges []edge) bool {
	n := len(c)
	for i, from := range indices {
		to := indices[(i+1)%len(indices)]

		delta := from - to
		if delta < 0 {
			delta = -delta
		}
		if delta == 1 || delta == n-1 {
			continue
		}

		path := 0.0
		prev := from
		for idx := from; idx != to; {
			idx = (idx + 1) % n
			path += geometry.PixelDistance(c[idx], c[prev])
			prev = idx
		}

		direct := edges[i].length
		hi, lo := max(direct, path), min(direct, path)
		if lo <= 0 {
			if hi > 0 {
				return false
			}
			continue
		}
		if hi/lo-1 > m.opts.SpikeTolerance {
			return false
		}
	}
	return true
}

// distanceMap lists, per vertex, the edge walked when leaving it in the
// given direction as (pixel length, length / arc length). indices restricts
// the walk to a subset of vertices.
func distanceMap(c []image.Point, direction int, indices []int) []edge {
	if indices == nil {
		indices = make([]int, len(c))
		for i := range indices {
			indices[i] = i
		}
	}
	arcLength := contours.ArcLength(c, true)
	offset := 0
	if direction == -1 {
		offset = -1
	}

	n := len(indices)
	out := make([]edge, n)
	for i := range indices {
		a := indices[(i+offset+n)%n]
		b := indices[(i+offset+1+n)%n]
		length := geometry.PixelDistance(c[a], c[b])
		out[i] = edge{length: length}
		if arcLength > 0 {
			out[i].unit = length / arcLength
		}
	}
	return out
}

func angleMap(c []image.Point, direction int) []float64 {
	n := len(c)
	out := make([]float64, n)
	for i := range c {
		out[i] = geometry.TurnAngle(
			geometry.FromImage(c[(i-direction+n)%n]),
			geometry.FromImage(c[i]),
			geometry.FromImage(c[(i+direction+n)%n]),
		)
	}
	return out
}

func first(results []Result, err error) (*Result, error) {
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return &results[0], nil
}
