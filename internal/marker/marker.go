// Package marker recognizes printed markers in board images.
//
// Absence of a marker is a normal outcome and is reported as a nil result,
// never as an error. Errors are reserved for images that cannot be processed.
package marker

import (
	"image"
	"strings"

	"gocv.io/x/gocv"

	"tabletop-tracker/internal/geometry"
	"tabletop-tracker/internal/processing/contours"
	"tabletop-tracker/internal/processing/tier"
)

// Marker finds one kind of marker in an image.
type Marker interface {
	ID() int
	// PreferredTier is the board resolution the marker is searched at.
	PreferredTier() tier.Tier
	FindInImage(img gocv.Mat) (*Result, error)
	FindInThresholdedImage(binary gocv.Mat) (*Result, error)
	FindAllInImage(img gocv.Mat) ([]Result, error)
}

// Result locates a found marker. Coordinates and sizes are fractions of the
// searched image.
type Result struct {
	MarkerID int          `json:"markerId"`
	X        float64      `json:"x"`
	Y        float64      `json:"y"`
	Width    float64      `json:"width"`
	Height   float64      `json:"height"`
	Angle    float64      `json:"angle"`
	Contour  [][2]float64 `json:"contour"`

	// RawContour holds the matched pixel coordinates.
	RawContour []image.Point `json:"-"`
}

// NewResult describes contour by its minimum-area rectangle inside an image
// of the given size.
func NewResult(markerID int, contour []image.Point, size image.Point) Result {
	r := Result{MarkerID: markerID, RawContour: contour}
	if len(contour) == 0 || size.X <= 0 || size.Y <= 0 {
		return r
	}

	w, h := float64(size.X), float64(size.Y)
	rect := contours.MinAreaRect(contour)

	r.X = float64(rect.Center.X) / w
	r.Y = float64(rect.Center.Y) / h
	r.Width = float64(rect.Width) / w
	r.Height = float64(rect.Height) / h
	r.Angle = rect.Angle
	r.Contour = Normalize(contour, size)
	return r
}

// Normalize divides every point by the image size.
func Normalize(contour []image.Point, size image.Point) [][2]float64 {
	out := make([][2]float64, len(contour))
	for i, p := range contour {
		out[i] = [2]float64{float64(p.X) / float64(size.X), float64(p.Y) / float64(size.Y)}
	}
	return out
}

// Corner marker kinds accepted by NewCornerMarker.
const (
	CornerDefault  = "DEFAULT"
	CornerTriangle = "TRIANGLE"
)

// NewCornerMarker returns the board corner marker registered under name.
// Unknown or empty names give the default marker.
func NewCornerMarker(name string) Marker {
	switch strings.ToUpper(name) {
	case CornerTriangle:
		return NewTriangleMarker(-1)
	default:
		return NewDefaultMarker(-1)
	}
}

func imageSize(m gocv.Mat) image.Point {
	return image.Point{X: m.Cols(), Y: m.Rows()}
}

func touchesBorder(contour []image.Point, size image.Point) bool {
	b := geometry.Bounds(contour)
	return b.Min.X <= 0 || b.Max.X+1 >= size.X-1 || b.Min.Y <= 0 || b.Max.Y+1 >= size.Y-1
}
