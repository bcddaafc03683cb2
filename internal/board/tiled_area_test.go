package board

import (
	"image"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletop-tracker/internal/processing/histogram"
	"tabletop-tracker/internal/testimage"
)

// 8×5 grid on a 1280×800 board gives 160px tiles; tile (2, 1) is painted black.
func tiledBoard(t *testing.T) (*Descriptor, *TiledArea) {
	t.Helper()
	img := testimage.Blank(1280, 800, testimage.White)
	testimage.FillRect(&img, image.Rect(320, 160, 479, 319), testimage.Black)

	d := descriptorWith(t, img)
	return d, NewTiledArea(10, FullBoard, image.Pt(8, 5), d)
}

func TestTileGeometry(t *testing.T) {
	d := NewDescriptor()
	defer d.Close()
	a := NewTiledArea(1, FullBoard, image.Pt(3, 2), d)
	defer a.Close()

	assert.Equal(t, r2.Point{X: 100, Y: 50}, a.TileSize(image.Pt(300, 100)))
	assert.Equal(t, image.Rect(200, 50, 300, 100), a.TileRegion(image.Pt(300, 100), 2, 1))
	assert.Equal(t, image.Pt(3, 2), a.TileCount())
}

func TestTile(t *testing.T) {
	d, a := tiledBoard(t)
	defer d.Close()
	defer a.Close()

	black, err := a.Tile(2, 1, true)
	require.NoError(t, err)
	defer black.Close()
	assert.Equal(t, 50, black.Cols())
	assert.Equal(t, 50, black.Rows())
	assert.Less(t, histogram.ImageLevel(black), 20.0)

	white, err := a.Tile(0, 0, true)
	require.NoError(t, err)
	defer white.Close()
	assert.Greater(t, histogram.ImageLevel(white), 250.0)

	_, err = a.Tile(8, 0, true)
	assert.Error(t, err)
}

func TestTileStrip(t *testing.T) {
	d, a := tiledBoard(t)
	defer d.Close()
	defer a.Close()

	coords := []image.Point{{0, 0}, {2, 1}, {7, 4}}
	strip, err := a.TileStrip(coords, true)
	require.NoError(t, err)
	defer strip.Close()

	assert.Equal(t, 150, strip.Image.Cols())
	assert.Equal(t, 50, strip.Image.Rows())
	assert.Equal(t, coords, strip.Coordinates)
	assert.Equal(t, 2500.0, strip.TilePixels())

	levels := make([]float64, len(coords))
	for i := range coords {
		tile := strip.Tile(i)
		levels[i] = histogram.ImageLevel(tile)
		tile.Close()
	}
	assert.Greater(t, levels[0], 250.0)
	assert.Less(t, levels[1], 20.0)
	assert.Greater(t, levels[2], 250.0)

	_, err = a.TileStrip(nil, true)
	assert.Error(t, err)
	_, err = a.TileStrip([]image.Point{{0, 5}}, true)
	assert.Error(t, err)
}
