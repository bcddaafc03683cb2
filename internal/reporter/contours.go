package reporter

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"tabletop-tracker/internal/marker"
	"tabletop-tracker/internal/processing/contours"
	"tabletop-tracker/internal/processing/filters"
	"tabletop-tracker/internal/processing/threshold"
	"tabletop-tracker/internal/processing/tier"
)

// DefaultApproximation is the polygon approximation epsilon as a fraction of
// each contour's perimeter.
const DefaultApproximation = 0.02

// Contour is one contour of an area image. Points and Area are relative to
// the image size; ArcLength is in pixels.
type Contour struct {
	Points    [][2]float64 `json:"contour"`
	Area      float64      `json:"area"`
	ArcLength float64      `json:"arclength"`
}

// FindContours calls back once with every contour in the area and their
// tree hierarchy.
type FindContours struct {
	base
	area              Area
	approximation     float64
	removeConvexHulls bool
	callback          func([]Contour, []contours.Hierarchy)
}

func NewFindContours(id int, area Area, approximation float64, removeConvexHulls bool, stability float64, callback func([]Contour, []contours.Hierarchy)) *FindContours {
	if approximation <= 0 {
		approximation = DefaultApproximation
	}
	return &FindContours{
		base:              base{id: id, kind: KindFindContours, stability: stability},
		area:              area,
		approximation:     approximation,
		removeConvexHulls: removeConvexHulls,
		callback:          callback,
	}
}

func (r *FindContours) Poll() (Outcome, error) {
	if r.finished {
		return Done, nil
	}
	img, ok, err := r.acquire(r.area, tier.Original, true)
	if !ok {
		return Continue, err
	}
	defer img.Release()

	var (
		found     []Contour
		hierarchy []contours.Hierarchy
	)
	err = img.WithMat(func(m gocv.Mat) (err error) {
		found, hierarchy, err = r.extract(m)
		return err
	})
	if err != nil || len(found) == 0 {
		return Continue, err
	}

	r.callback(found, hierarchy)
	return r.finish()
}

func (r *FindContours) extract(gray gocv.Mat) ([]Contour, []contours.Hierarchy, error) {
	blurred := filters.Blur(gray, 3)
	defer blurred.Close()
	binary := threshold.AdaptiveBinary(blurred)
	defer binary.Close()

	raw, hierarchy := contours.FindWithHierarchy(binary)
	if len(raw) == 0 {
		return nil, nil, nil
	}

	size := image.Point{X: gray.Cols(), Y: gray.Rows()}
	imageArea := float64(size.X * size.Y)

	out := make([]Contour, len(raw))
	for i, c := range raw {
		approx := contours.Approx(c, r.approximation)
		if r.removeConvexHulls {
			hull, err := contours.ConvexHull(approx)
			if err != nil {
				return nil, nil, fmt.Errorf("convex hull of contour %d: %w", i, err)
			}
			approx = hull
		}
		out[i] = Contour{
			Points:    marker.Normalize(approx, size),
			Area:      contours.Area(c) / imageArea,
			ArcLength: contours.ArcLength(c, true),
		}
	}
	return out, hierarchy, nil
}
