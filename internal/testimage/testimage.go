// Package testimage draws synthetic camera frames for tests.
package testimage

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"tabletop-tracker/internal/geometry"
)

var (
	White = color.RGBA{R: 255, G: 255, B: 255}
	Black = color.RGBA{}
)

// Blank returns a w×h three channel image filled with c.
func Blank(w, h int, c color.RGBA) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0), h, w, gocv.MatTypeCV8UC3)
}

// FillPolygon paints a filled polygon onto img.
func FillPolygon(img *gocv.Mat, polygon []image.Point, c color.RGBA) {
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{polygon})
	defer pv.Close()
	gocv.FillPoly(img, pv, c)
}

// FillRect paints a filled rectangle onto img.
func FillRect(img *gocv.Mat, r image.Rectangle, c color.RGBA) {
	gocv.Rectangle(img, r, c, -1)
}

// CornerL is the six vertex corner marker with its outer corner at origin and
// the arms pointing into the board from the given corner.
func CornerL(origin image.Point, size, thickness int, corner geometry.Corner) []image.Point {
	sx, sy := 1, 1
	switch corner {
	case geometry.TopRight:
		sx = -1
	case geometry.BottomLeft:
		sy = -1
	case geometry.BottomRight:
		sx, sy = -1, -1
	}
	offsets := []image.Point{
		{0, 0}, {size, 0}, {size, thickness}, {thickness, thickness}, {thickness, size}, {0, size},
	}
	out := make([]image.Point, len(offsets))
	for i, o := range offsets {
		out[i] = image.Point{X: origin.X + sx*o.X, Y: origin.Y + sy*o.Y}
	}
	return out
}

// BoardCorners are the outer marker corners drawn by Board.
var BoardCorners = [4]image.Point{{30, 50}, {1250, 50}, {1250, 750}, {30, 750}}

// Board draws a 1280×800 frame with a corner marker in each corner. Marker
// outer corners are at BoardCorners.
func Board() gocv.Mat {
	img := Blank(1280, 800, White)
	for i, c := range []geometry.Corner{geometry.TopLeft, geometry.TopRight, geometry.BottomRight, geometry.BottomLeft} {
		FillPolygon(&img, CornerL(BoardCorners[i], 40, 12, c), Black)
	}
	return img
}

// Trace expands a polygon into a closed pixel path with one point per unit
// step along each edge, the way a contour tracer reports boundaries.
func Trace(polygon []image.Point) []image.Point {
	var out []image.Point
	for i, a := range polygon {
		b := polygon[(i+1)%len(polygon)]
		steps := max(abs(b.X-a.X), abs(b.Y-a.Y))
		for s := 0; s < steps; s++ {
			t := float64(s) / float64(steps)
			out = append(out, image.Point{
				X: a.X + int(math.Round(t*float64(b.X-a.X))),
				Y: a.Y + int(math.Round(t*float64(b.Y-a.Y))),
			})
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
