package geometry_test

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletop-tracker/internal/geometry"
	"tabletop-tracker/internal/testimage"
)

func TestSimplifyTracedSquare(t *testing.T) {
	square := []image.Point{{10, 10}, {110, 10}, {110, 110}, {10, 110}}
	dense := testimage.Trace(square)
	require.Len(t, dense, 400)
	assert.Equal(t, image.Pt(10, 10), dense[0])
	assert.Equal(t, image.Pt(110, 10), dense[100])

	simplified := geometry.Simplify(dense, geometry.DefaultLookahead)
	require.Len(t, simplified, 4)
	for i, corner := range square {
		assert.LessOrEqual(t, geometry.PixelDistance(corner, simplified[i]), 2.0, "corner %d", i)
	}
}
