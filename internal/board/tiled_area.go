package board

import (
	"fmt"
	"image"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"tabletop-tracker/internal/opencv/safe"
	"tabletop-tracker/internal/processing/tier"
)

// TiledArea is an Area divided into a grid of equally sized tiles.
type TiledArea struct {
	*Area
	tileCount image.Point
	tier      tier.Tier
}

func NewTiledArea(id int, rect Rect, tileCount image.Point, descriptor *Descriptor) *TiledArea {
	return &TiledArea{
		Area:      NewArea(id, rect, descriptor),
		tileCount: tileCount,
		tier:      tier.Small,
	}
}

func (a *TiledArea) TileCount() image.Point { return a.tileCount }

// TileSize is the fractional tile size for an area image of the given size.
func (a *TiledArea) TileSize(areaSize image.Point) r2.Point {
	return r2.Point{
		X: float64(areaSize.X) / float64(a.tileCount.X),
		Y: float64(areaSize.Y) / float64(a.tileCount.Y),
	}
}

// TileRegion is the pixel rectangle of tile (x, y). Edges are truncated.
func (a *TiledArea) TileRegion(areaSize image.Point, x, y int) image.Rectangle {
	ts := a.TileSize(areaSize)
	x1 := int(float64(x) * ts.X)
	y1 := int(float64(y) * ts.Y)
	return image.Rect(x1, y1, x1+int(ts.X), y1+int(ts.Y))
}

func (a *TiledArea) validTile(p image.Point) error {
	if p.X < 0 || p.Y < 0 || p.X >= a.tileCount.X || p.Y >= a.tileCount.Y {
		return fmt.Errorf("tile %v outside %dx%d grid of area %d", p, a.tileCount.X, a.tileCount.Y, a.id)
	}
	return nil
}

func (a *TiledArea) source(gray bool) (*safe.Mat, error) {
	if gray {
		return a.GrayImage(a.tier)
	}
	return a.Image(a.tier)
}

// Tile returns a copy of tile (x, y).
func (a *TiledArea) Tile(x, y int, gray bool) (gocv.Mat, error) {
	if err := a.validTile(image.Pt(x, y)); err != nil {
		return gocv.NewMat(), err
	}
	src, err := a.source(gray)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer src.Release()

	out := gocv.NewMat()
	err = src.WithMat(func(m gocv.Mat) error {
		size := image.Point{X: m.Cols(), Y: m.Rows()}
		region := a.TileRegion(size, x, y).Intersect(image.Rectangle{Max: size})
		if region.Empty() {
			return fmt.Errorf("tile (%d,%d) of area %d is empty", x, y, a.id)
		}
		view := m.Region(region)
		defer view.Close()
		view.CopyTo(&out)
		return nil
	})
	return out, err
}

// TileStrip places the given tiles side by side in one image.
func (a *TiledArea) TileStrip(coordinates []image.Point, gray bool) (*TileStrip, error) {
	if len(coordinates) == 0 {
		return nil, fmt.Errorf("area %d: no tile coordinates", a.id)
	}
	for _, c := range coordinates {
		if err := a.validTile(c); err != nil {
			return nil, err
		}
	}

	src, err := a.source(gray)
	if err != nil {
		return nil, err
	}
	defer src.Release()

	var strip *TileStrip
	err = src.WithMat(func(m gocv.Mat) error {
		size := image.Point{X: m.Cols(), Y: m.Rows()}
		ts := a.TileSize(size)
		width := int(float64(len(coordinates)) * ts.X)
		height := int(ts.Y)
		if width <= 0 || height <= 0 {
			return fmt.Errorf("area %d: tiles are smaller than a pixel", a.id)
		}

		img := gocv.Zeros(height, width, m.Type())

		offset := 0.0
		for _, c := range coordinates {
			from := a.TileRegion(size, c.X, c.Y).Intersect(image.Rectangle{Max: size})
			x := int(offset)
			w := min(from.Dx(), int(ts.X), width-x)
			h := min(from.Dy(), height)
			offset += ts.X
			if w <= 0 || h <= 0 {
				continue
			}

			srcView := m.Region(image.Rect(from.Min.X, from.Min.Y, from.Min.X+w, from.Min.Y+h))
			dstView := img.Region(image.Rect(x, 0, x+w, h))
			srcView.CopyTo(&dstView)
			srcView.Close()
			dstView.Close()
		}

		strip = &TileStrip{
			Image:       img,
			TileWidth:   ts.X,
			TileHeight:  ts.Y,
			Coordinates: append([]image.Point(nil), coordinates...),
		}
		return nil
	})
	return strip, err
}

// TileStrip is a horizontal concatenation of tiles, in coordinate order.
type TileStrip struct {
	Image       gocv.Mat
	TileWidth   float64
	TileHeight  float64
	Coordinates []image.Point
}

// Tile returns a view of the i-th tile. The view must be closed.
func (s *TileStrip) Tile(i int) gocv.Mat {
	return s.TileFromStrip(s.Image, i)
}

// TileFromStrip returns a view of the i-th tile of img, an image derived from
// the strip with the same layout such as its binarized copy.
func (s *TileStrip) TileFromStrip(img gocv.Mat, i int) gocv.Mat {
	x1 := min(int(float64(i)*s.TileWidth), img.Cols()-1)
	x2 := min(x1+int(s.TileWidth), img.Cols())
	return img.Region(image.Rect(x1, 0, x2, min(int(s.TileHeight), img.Rows())))
}

// TilePixels is the nominal pixel count of one tile.
func (s *TileStrip) TilePixels() float64 {
	return s.TileWidth * s.TileHeight
}

func (s *TileStrip) Close() {
	s.Image.Close()
}
