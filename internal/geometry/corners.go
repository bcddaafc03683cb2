package geometry

import (
	"fmt"
	"image"
)

// Corner indexes the ordered output of OrderCorners.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomRight
	BottomLeft
)

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "topLeft"
	case TopRight:
		return "topRight"
	case BottomRight:
		return "bottomRight"
	case BottomLeft:
		return "bottomLeft"
	default:
		return fmt.Sprintf("corner(%d)", int(c))
	}
}

// OrderCorners picks the four extreme points of a point cloud and returns
// them as top-left, top-right, bottom-right, bottom-left.
//
// Top-left has the smallest x+y, bottom-right the largest. Top-right has
// the largest x-y, bottom-left the smallest. Ties are broken by the
// lexicographically smaller point so the result does not depend on input order.
func OrderCorners(points []image.Point) ([4]image.Point, error) {
	var corners [4]image.Point
	if len(points) < 4 {
		return corners, fmt.Errorf("need at least 4 points, got %d", len(points))
	}

	tl, tr, br, bl := points[0], points[0], points[0], points[0]
	for _, p := range points[1:] {
		sum, diff := p.X+p.Y, p.X-p.Y

		if s := tl.X + tl.Y; sum < s || (sum == s && less(p, tl)) {
			tl = p
		}
		if s := br.X + br.Y; sum > s || (sum == s && less(p, br)) {
			br = p
		}
		if d := tr.X - tr.Y; diff > d || (diff == d && less(p, tr)) {
			tr = p
		}
		if d := bl.X - bl.Y; diff < d || (diff == d && less(p, bl)) {
			bl = p
		}
	}

	corners[TopLeft] = tl
	corners[TopRight] = tr
	corners[BottomRight] = br
	corners[BottomLeft] = bl
	return corners, nil
}

// WarpRectangle returns the axis-aligned destination rectangle for a
// perspective warp of the given ordered corners. Width is the longer of the
// top and bottom edges, height the longer of the left and right edges.
func WarpRectangle(corners [4]image.Point) [4]image.Point {
	width := int(max(
		PixelDistance(corners[TopLeft], corners[TopRight]),
		PixelDistance(corners[BottomLeft], corners[BottomRight]),
	))
	height := int(max(
		PixelDistance(corners[TopLeft], corners[BottomLeft]),
		PixelDistance(corners[TopRight], corners[BottomRight]),
	))

	return [4]image.Point{
		{X: 0, Y: 0},
		{X: width, Y: 0},
		{X: width, Y: height},
		{X: 0, Y: height},
	}
}

func less(a, b image.Point) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}
