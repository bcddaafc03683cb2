package contours

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var white = color.RGBA{R: 255, G: 255, B: 255}

func binary(draw func(*gocv.Mat)) gocv.Mat {
	img := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8U)
	img.SetTo(gocv.NewScalar(0, 0, 0, 0))
	draw(&img)
	return img
}

func TestFindSquare(t *testing.T) {
	img := binary(func(m *gocv.Mat) {
		gocv.Rectangle(m, image.Rect(50, 50, 150, 150), white, -1)
	})
	defer img.Close()

	all := Find(img)
	require.Len(t, all, 1)

	square := Largest(all)
	assert.InDelta(t, 99*99, Area(square), 300)
	assert.Equal(t, image.Rect(50, 50, 150, 150), BoundingRect(square))
	assert.Len(t, Approx(square, 0.02), 4)

	rect := MinAreaRect(square)
	assert.InDelta(t, 100, rect.Center.X, 1)
}

func TestFindWithHierarchy(t *testing.T) {
	img := binary(func(m *gocv.Mat) {
		gocv.Rectangle(m, image.Rect(20, 20, 180, 180), white, -1)
		gocv.Rectangle(m, image.Rect(60, 60, 140, 140), color.RGBA{}, -1)
	})
	defer img.Close()

	all, hierarchy := FindWithHierarchy(img)
	require.Len(t, all, 2)
	require.Len(t, hierarchy, 2)

	parents := 0
	for _, h := range hierarchy {
		if h[3] >= 0 {
			parents++
		}
	}
	assert.Equal(t, 1, parents, "the hole is a child of the outer border")
}

func TestFindSimpleCompressesRuns(t *testing.T) {
	img := binary(func(m *gocv.Mat) {
		gocv.Rectangle(m, image.Rect(50, 50, 150, 150), white, -1)
	})
	defer img.Close()

	simple := FindSimple(img)
	require.Len(t, simple, 1)
	assert.Len(t, simple[0], 4)
}

func TestDegenerateContours(t *testing.T) {
	line := []image.Point{{0, 0}, {5, 5}}
	assert.Zero(t, Area(line))
	assert.Equal(t, line, Approx(line, 0.02))
	assert.Nil(t, Largest(nil))
}

func TestArcLength(t *testing.T) {
	square := []image.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	assert.InDelta(t, 40, ArcLength(square, true), 1e-9)
	assert.InDelta(t, 30, ArcLength(square, false), 1e-9)
	assert.Zero(t, ArcLength(square[:1], true))
}

func TestConvexHull(t *testing.T) {
	points := []image.Point{{0, 0}, {5, 5}, {10, 0}, {10, 10}, {0, 10}, {5, 2}, {5, 0}}
	hull, err := ConvexHull(points)
	require.NoError(t, err)
	assert.ElementsMatch(t, []image.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}, hull)
	assert.InDelta(t, 100, Area(hull), 1e-9)

	short, err := ConvexHull(points[:2])
	require.NoError(t, err)
	assert.Equal(t, points[:2], short)
}
