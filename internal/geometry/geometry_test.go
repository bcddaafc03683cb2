package geometry

import (
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rotate(p image.Point, center r2.Point, rad float64) image.Point {
	x := float64(p.X) - center.X
	y := float64(p.Y) - center.Y
	return image.Point{
		X: int(math.Round(center.X + x*math.Cos(rad) - y*math.Sin(rad))),
		Y: int(math.Round(center.Y + x*math.Sin(rad) + y*math.Cos(rad))),
	}
}

func TestOrderCornersPermutationInvariant(t *testing.T) {
	tl, tr, br, bl := image.Pt(10, 12), image.Pt(300, 8), image.Pt(305, 200), image.Pt(6, 190)
	want := [4]image.Point{tl, tr, br, bl}

	perms := [][]image.Point{
		{tl, tr, br, bl},
		{br, bl, tl, tr},
		{bl, tl, tr, br},
		{tr, br, bl, tl},
		{br, tr, bl, tl},
		{tl, bl, tr, br},
	}
	for _, p := range perms {
		got, err := OrderCorners(p)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestOrderCornersStableUnderSmallRotation(t *testing.T) {
	rect := []image.Point{{100, 100}, {500, 100}, {500, 300}, {100, 300}}
	center := Center(rect)

	for _, deg := range []float64{-30, -10, 0, 10, 30} {
		rotated := make([]image.Point, len(rect))
		for i, p := range rect {
			rotated[i] = rotate(p, center, deg*math.Pi/180)
		}
		got, err := OrderCorners([]image.Point{rotated[2], rotated[0], rotated[3], rotated[1]})
		require.NoError(t, err)
		assert.Equal(t, [4]image.Point{rotated[0], rotated[1], rotated[2], rotated[3]}, got, "rotation %v", deg)
	}
}

func TestOrderCornersNeedsFourPoints(t *testing.T) {
	_, err := OrderCorners([]image.Point{{0, 0}, {1, 1}, {2, 2}})
	assert.Error(t, err)
}

func TestWarpRectangle(t *testing.T) {
	corners := [4]image.Point{{0, 0}, {100, 0}, {110, 50}, {-10, 50}}
	got := WarpRectangle(corners)

	assert.Equal(t, image.Pt(0, 0), got[TopLeft])
	assert.Equal(t, image.Pt(120, 0), got[TopRight])
	assert.Equal(t, image.Pt(120, 50), got[BottomRight])
	assert.Equal(t, image.Pt(0, 50), got[BottomLeft])
}

func TestTurnAngle(t *testing.T) {
	cur := r2.Point{}
	assert.InDelta(t, math.Pi/2, TurnAngle(r2.Point{X: 1}, cur, r2.Point{Y: 1}), 1e-9)
	assert.InDelta(t, 3*math.Pi/2, TurnAngle(r2.Point{Y: 1}, cur, r2.Point{X: 1}), 1e-9)
	assert.InDelta(t, math.Pi, TurnAngle(r2.Point{X: -1}, cur, r2.Point{X: 1}), 1e-9)

	a := TurnAngle(r2.Point{X: 3, Y: -4}, cur, r2.Point{X: -2, Y: 7})
	assert.GreaterOrEqual(t, a, 0.0)
	assert.Less(t, a, 2*math.Pi)
}

func TestLineLength(t *testing.T) {
	assert.InDelta(t, 5.0, LineLength(r2.Point{}, r2.Point{X: 3, Y: 4}), 1e-12)
	assert.InDelta(t, 5.0, PixelDistance(image.Pt(1, 1), image.Pt(4, 5)), 1e-12)
}

func TestAngleDifferenceWraps(t *testing.T) {
	assert.InDelta(t, -0.2, AngleDifference(0.1, 2*math.Pi+0.3), 1e-9)
	assert.InDelta(t, -0.2, AngleDifference(2*math.Pi-0.1, 0.1), 1e-9)
	assert.InDelta(t, 0.2, AngleDifference(0.1, 2*math.Pi-0.1), 1e-9)
}

func TestSignedAreaFollowsDirection(t *testing.T) {
	square := []image.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	reversed := []image.Point{{0, 10}, {10, 10}, {10, 0}, {0, 0}}

	assert.InDelta(t, 100, SignedArea(square), 1e-9)
	assert.InDelta(t, -100, SignedArea(reversed), 1e-9)
	assert.Equal(t, 1, Orientation(square))
	assert.Equal(t, -1, Orientation(reversed))
}

func TestMaxCosine(t *testing.T) {
	square := []image.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	assert.InDelta(t, 0, MaxCosine(square), 1e-6)

	skewed := []image.Point{{0, 0}, {10, 0}, {20, 10}, {10, 10}}
	assert.InDelta(t, math.Cos(math.Pi/4), MaxCosine(skewed), 1e-6)
}

func TestBoundsAndTranslate(t *testing.T) {
	c := []image.Point{{3, 4}, {-1, 8}, {5, 2}}
	assert.Equal(t, image.Rect(-1, 2, 5, 8), Bounds(c))
	assert.Equal(t, []image.Point{{13, 24}, {9, 28}, {15, 22}}, Translate(c, image.Pt(10, 20)))
}
