// Package reporter runs long-lived watchers that poll the board and call back
// once their condition holds.
package reporter

import (
	"errors"
	"fmt"
	"image"

	"tabletop-tracker/internal/board"
	"tabletop-tracker/internal/brick"
	"tabletop-tracker/internal/opencv/safe"
	"tabletop-tracker/internal/processing/tier"
)

// Outcome tells the runner whether to keep polling.
type Outcome int

const (
	Continue Outcome = iota
	Done
)

func (o Outcome) String() string {
	if o == Done {
		return "DONE"
	}
	return "CONTINUE"
}

// Reporter is one polling step. Poll is only ever called from one goroutine.
type Reporter interface {
	ID() int
	Kind() string
	Poll() (Outcome, error)
}

// Area is the part of a board area a reporter reads.
type Area interface {
	ID() int
	Image(t tier.Tier) (*safe.Mat, error)
	GrayImage(t tier.Tier) (*safe.Mat, error)
	StabilityScore() float64
}

// TiledArea is an Area that can build tile strips.
type TiledArea interface {
	Area
	brick.StripSource
}

// BrickFinder is implemented by *brick.Detector.
type BrickFinder interface {
	FindBrick(src brick.StripSource, coordinates []image.Point) (brick.Result, error)
	FindBricks(src brick.StripSource, coordinates []image.Point) ([]brick.Tile, error)
}

const (
	KindFindMarker         = "findMarker"
	KindFindMarkers        = "findMarkers"
	KindTrackMarker        = "trackMarker"
	KindBrickAtAnyPosition = "brickAtAnyPosition"
	KindBrickMovedToAnyOf  = "brickMovedToAnyOf"
	KindBrickMovedTo       = "brickMovedTo"
	KindBrickPositions     = "brickPositions"
	KindFindContours       = "findContours"
)

type base struct {
	id        int
	kind      string
	stability float64
	finished  bool
}

func (b *base) ID() int { return b.id }

func (b *base) Kind() string { return b.kind }

func (b *base) finish() (Outcome, error) {
	b.finished = true
	return Done, nil
}

// acquire returns the area image at tier t when the board is recognized and
// the area is at least as stable as required. ok is false when the
// reporter should simply try again next cycle.
func (b *base) acquire(area Area, t tier.Tier, gray bool) (img *safe.Mat, ok bool, err error) {
	if area.StabilityScore() < b.stability {
		return nil, false, nil
	}
	if gray {
		img, err = area.GrayImage(t)
	} else {
		img, err = area.Image(t)
	}
	switch {
	case errors.Is(err, board.ErrNotRecognized), errors.Is(err, board.ErrSnapshotClosed):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("reporter %d: reading area %d: %w", b.id, area.ID(), err)
	}
	return img, true, nil
}
