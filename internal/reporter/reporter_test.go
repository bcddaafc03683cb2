package reporter

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"tabletop-tracker/internal/board"
	"tabletop-tracker/internal/brick"
	"tabletop-tracker/internal/logger"
	"tabletop-tracker/internal/marker"
	"tabletop-tracker/internal/processing/contours"
	"tabletop-tracker/internal/testimage"
)

// fixture is an 8×5 tiled board whose image can be swapped between polls.
type fixture struct {
	t          *testing.T
	descriptor *board.Descriptor
	area       *board.TiledArea
	detector   *brick.Detector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := board.NewDescriptor()
	detector, err := brick.NewDetector(brick.DefaultConfig(), logger.NewNop())
	require.NoError(t, err)

	f := &fixture{
		t:          t,
		descriptor: d,
		area:       board.NewTiledArea(1, board.FullBoard, image.Pt(8, 5), d),
		detector:   detector,
	}
	t.Cleanup(func() {
		f.area.Close()
		d.Close()
	})
	return f
}

// show publishes a board image with bricks on the given tiles.
func (f *fixture) show(bricks ...image.Point) {
	f.draw(func(img *gocv.Mat) {
		for _, b := range bricks {
			x, y := b.X*160, b.Y*160
			testimage.FillRect(img, image.Rect(x+30, y+30, x+130, y+130), testimage.Black)
		}
	})
}

func (f *fixture) draw(fn func(img *gocv.Mat)) {
	f.t.Helper()
	camera := testimage.Blank(640, 480, testimage.White)
	defer camera.Close()

	img := testimage.Blank(1280, 800, testimage.White)
	fn(&img)
	s, err := board.NewRecognizedSnapshot(camera, img, testimage.BoardCorners)
	require.NoError(f.t, err)
	f.descriptor.SetSnapshot(s)
}

type unstableArea struct {
	*board.TiledArea
}

func (unstableArea) StabilityScore() float64 { return 0.5 }

var positions = []image.Point{{1, 1}, {2, 1}, {3, 1}, {4, 1}}

func TestBrickAtAnyPositionFiresOnce(t *testing.T) {
	f := newFixture(t)

	var calls []image.Point
	r := NewBrickAtAnyPosition(7, f.area, f.detector, positions, DefaultBrickStability, func(p image.Point) {
		calls = append(calls, p)
	})
	assert.Equal(t, 7, r.ID())
	assert.Equal(t, KindBrickAtAnyPosition, r.Kind())

	for poll := 1; poll <= 5; poll++ {
		if poll < 3 {
			f.show()
		} else {
			f.show(image.Pt(3, 1))
		}

		outcome, err := r.Poll()
		require.NoError(t, err)
		if poll < 3 {
			assert.Equal(t, Continue, outcome, "poll %d", poll)
			assert.Empty(t, calls)
		} else {
			assert.Equal(t, Done, outcome, "poll %d", poll)
		}
	}
	assert.Equal(t, []image.Point{{3, 1}}, calls)
}

func TestBrickReporterWaitsForBoard(t *testing.T) {
	f := newFixture(t)

	r := NewBrickAtAnyPosition(1, f.area, f.detector, positions, 0, func(image.Point) {
		t.Fatal("no board, no callback")
	})
	outcome, err := r.Poll()
	assert.NoError(t, err)
	assert.Equal(t, Continue, outcome)
}

func TestBrickReporterWaitsForStability(t *testing.T) {
	f := newFixture(t)
	f.show(image.Pt(2, 1))

	r := NewBrickAtAnyPosition(1, unstableArea{f.area}, f.detector, positions, DefaultBrickStability, func(image.Point) {
		t.Fatal("unstable area, no callback")
	})
	outcome, err := r.Poll()
	assert.NoError(t, err)
	assert.Equal(t, Continue, outcome)
}

func TestBrickMovedToAnyOf(t *testing.T) {
	f := newFixture(t)

	var got []image.Point
	r := NewBrickMovedToAnyOf(1, f.area, f.detector, image.Pt(1, 1), positions, 0, func(p image.Point) {
		got = append(got, p)
	})

	f.show(image.Pt(1, 1))
	outcome, err := r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Continue, outcome)

	f.show(image.Pt(4, 1))
	outcome, err = r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Done, outcome)
	assert.Equal(t, []image.Point{{4, 1}}, got)
}

func TestBrickMovedTo(t *testing.T) {
	f := newFixture(t)

	var got []image.Point
	r := NewBrickMovedTo(1, f.area, f.detector, image.Pt(2, 1), positions, 0, func(p image.Point) {
		got = append(got, p)
	})

	f.show(image.Pt(3, 1))
	outcome, err := r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Continue, outcome)

	f.show(image.Pt(2, 1))
	outcome, err = r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Done, outcome)
	assert.Equal(t, []image.Point{{2, 1}}, got)
}

func TestBrickPositions(t *testing.T) {
	f := newFixture(t)
	f.show(image.Pt(1, 1), image.Pt(4, 1))

	var got [][]image.Point
	r := NewBrickPositions(1, f.area, f.detector, positions, 0, func(p []image.Point) {
		got = append(got, p)
	})

	outcome, err := r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Done, outcome)
	require.Len(t, got, 1)
	assert.Equal(t, []image.Point{{1, 1}, {4, 1}}, got[0])
}

func squareMarker(t *testing.T) marker.Marker {
	t.Helper()
	m, err := marker.NewShapeMarker(5, []image.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}, marker.DefaultShapeOptions())
	require.NoError(t, err)
	return m
}

func (f *fixture) showSquare() {
	f.draw(func(img *gocv.Mat) {
		testimage.FillRect(img, image.Rect(540, 300, 740, 500), testimage.Black)
	})
}

func TestFindMarker(t *testing.T) {
	f := newFixture(t)

	var got []marker.Result
	r := NewFindMarker(1, f.area, squareMarker(t), DefaultMarkerStability, func(res marker.Result) {
		got = append(got, res)
	})

	f.show()
	outcome, err := r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Continue, outcome)

	f.showSquare()
	outcome, err = r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Done, outcome)

	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].MarkerID)
	assert.InDelta(t, 0.5, got[0].X, 0.02)
	assert.InDelta(t, 0.5, got[0].Y, 0.02)

	outcome, err = r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Done, outcome)
	assert.Len(t, got, 1)
}

func TestTrackMarker(t *testing.T) {
	f := newFixture(t)
	f.showSquare()

	count := 0
	r := NewTrackMarker(1, f.area, squareMarker(t), func(marker.Result) { count++ })

	for i := 0; i < 3; i++ {
		outcome, err := r.Poll()
		require.NoError(t, err)
		assert.Equal(t, Continue, outcome)
	}
	assert.Equal(t, 3, count)
}

func TestFindMarkersStableFor(t *testing.T) {
	f := newFixture(t)
	f.showSquare()

	var got [][]marker.Result
	r := NewFindMarkers(1, f.area, []marker.Marker{squareMarker(t)}, 0, 100*time.Millisecond, func(res []marker.Result) {
		got = append(got, res)
	})

	clock := time.Unix(1000, 0)
	r.now = func() time.Time { return clock }

	outcome, err := r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Continue, outcome)

	clock = clock.Add(50 * time.Millisecond)
	outcome, err = r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Continue, outcome)

	clock = clock.Add(60 * time.Millisecond)
	outcome, err = r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Done, outcome)

	require.Len(t, got, 1)
	assert.Len(t, got[0], 1)
}

func TestFindMarkersImmediate(t *testing.T) {
	f := newFixture(t)
	f.show()

	var got [][]marker.Result
	r := NewFindMarkers(1, f.area, []marker.Marker{squareMarker(t)}, 0, 0, func(res []marker.Result) {
		got = append(got, res)
	})

	outcome, err := r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Done, outcome)
	require.Len(t, got, 1)
	assert.Empty(t, got[0])
}

func TestFindContours(t *testing.T) {
	f := newFixture(t)
	f.showSquare()

	var (
		found     []Contour
		hierarchy []contours.Hierarchy
	)
	r := NewFindContours(1, f.area, 0, true, 0, func(c []Contour, h []contours.Hierarchy) {
		found, hierarchy = c, h
	})

	outcome, err := r.Poll()
	require.NoError(t, err)
	assert.Equal(t, Done, outcome)

	require.NotEmpty(t, found)
	assert.Len(t, hierarchy, len(found))
	for _, c := range found {
		assert.GreaterOrEqual(t, c.Area, 0.0)
		assert.LessOrEqual(t, c.Area, 1.0)
		for _, p := range c.Points {
			assert.True(t, p[0] >= 0 && p[0] <= 1 && p[1] >= 0 && p[1] <= 1, "point %v", p)
		}
	}
}
