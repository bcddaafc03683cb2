package reporter

import (
	"image"

	"tabletop-tracker/internal/brick"
	"tabletop-tracker/internal/processing/tier"
)

// DefaultBrickStability is the stability brick reporters wait for by default.
const DefaultBrickStability = 0.98

// BrickPosition calls back once with the position of a single brick among
// its positions, when that position is acceptable.
type BrickPosition struct {
	base
	area      TiledArea
	detector  BrickFinder
	positions []image.Point
	accept    func(image.Point) bool
	callback  func(image.Point)
}

func newBrickPosition(id int, kind string, area TiledArea, detector BrickFinder, positions []image.Point, stability float64, accept func(image.Point) bool, callback func(image.Point)) *BrickPosition {
	return &BrickPosition{
		base:      base{id: id, kind: kind, stability: stability},
		area:      area,
		detector:  detector,
		positions: append([]image.Point(nil), positions...),
		accept:    accept,
		callback:  callback,
	}
}

// NewBrickAtAnyPosition fires as soon as a brick is on any of positions.
func NewBrickAtAnyPosition(id int, area TiledArea, detector BrickFinder, positions []image.Point, stability float64, callback func(image.Point)) *BrickPosition {
	return newBrickPosition(id, KindBrickAtAnyPosition, area, detector, positions, stability,
		func(image.Point) bool { return true }, callback)
}

// NewBrickMovedToAnyOf fires once the brick is found anywhere but initial.
func NewBrickMovedToAnyOf(id int, area TiledArea, detector BrickFinder, initial image.Point, positions []image.Point, stability float64, callback func(image.Point)) *BrickPosition {
	return newBrickPosition(id, KindBrickMovedToAnyOf, area, detector, positions, stability,
		func(p image.Point) bool { return p != initial }, callback)
}

// NewBrickMovedTo fires once the brick is found on target.
func NewBrickMovedTo(id int, area TiledArea, detector BrickFinder, target image.Point, positions []image.Point, stability float64, callback func(image.Point)) *BrickPosition {
	return newBrickPosition(id, KindBrickMovedTo, area, detector, positions, stability,
		func(p image.Point) bool { return p == target }, callback)
}

func (r *BrickPosition) Poll() (Outcome, error) {
	if r.finished {
		return Done, nil
	}
	if ok, err := r.tilesReady(r.area); !ok {
		return Continue, err
	}

	result, err := r.detector.FindBrick(r.area, r.positions)
	if err != nil {
		return Continue, err
	}
	if !result.Found || !r.accept(result.Position) {
		return Continue, nil
	}

	r.callback(result.Position)
	return r.finish()
}

// BrickPositions calls back once with every position holding a brick.
type BrickPositions struct {
	base
	area      TiledArea
	detector  BrickFinder
	positions []image.Point
	callback  func([]image.Point)
}

func NewBrickPositions(id int, area TiledArea, detector BrickFinder, positions []image.Point, stability float64, callback func([]image.Point)) *BrickPositions {
	return &BrickPositions{
		base:      base{id: id, kind: KindBrickPositions, stability: stability},
		area:      area,
		detector:  detector,
		positions: append([]image.Point(nil), positions...),
		callback:  callback,
	}
}

func (r *BrickPositions) Poll() (Outcome, error) {
	if r.finished {
		return Done, nil
	}
	if ok, err := r.tilesReady(r.area); !ok {
		return Continue, err
	}

	tiles, err := r.detector.FindBricks(r.area, r.positions)
	if err != nil {
		return Continue, err
	}

	r.callback(brick.Positions(tiles))
	return r.finish()
}

// tilesReady checks the gray image tile strips are cut from.
func (b *base) tilesReady(area TiledArea) (bool, error) {
	img, ok, err := b.acquire(area, tier.Small, true)
	if img != nil {
		img.Release()
	}
	return ok, err
}
