package board

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"tabletop-tracker/internal/geometry"
	"tabletop-tracker/internal/logger"
	"tabletop-tracker/internal/processing/tier"
	"tabletop-tracker/internal/testimage"
)

func TestFindBoard(t *testing.T) {
	frame := testimage.Board()
	defer frame.Close()

	d := NewDescriptor()
	defer d.Close()
	r := NewRecognizer(logger.NewNop())

	s, err := r.FindBoard(frame, d, false)
	require.NoError(t, err)
	defer s.Close()
	require.True(t, s.Recognized(), "missing %v", s.MissingCorners())

	corners := s.Corners()
	for i, want := range testimage.BoardCorners {
		assert.InDelta(t, want.X, corners[i].X, 3, "corner %s", geometry.Corner(i))
		assert.InDelta(t, want.Y, corners[i].Y, 3, "corner %s", geometry.Corner(i))
	}

	board, err := s.BoardImage(tier.Original)
	require.NoError(t, err)
	defer board.Release()
	size := board.Size()
	assert.InDelta(t, 1220, size.X, 4)
	assert.InDelta(t, 700, size.Y, 4)
}

func TestFindBoardMissingCorners(t *testing.T) {
	frame := testimage.Blank(1280, 800, testimage.White)
	defer frame.Close()

	d := NewDescriptor()
	defer d.Close()

	s, err := NewRecognizer(logger.NewNop()).FindBoard(frame, d, false)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Recognized())
	assert.Equal(t, []string{"topLeft", "topRight", "bottomLeft", "bottomRight"}, s.MissingCorners())
}

func TestFindBoardPartiallyCovered(t *testing.T) {
	frame := testimage.Board()
	defer frame.Close()
	// hide the bottom right marker
	testimage.FillRect(&frame, image.Rect(1180, 680, 1279, 799), testimage.White)

	d := NewDescriptor()
	defer d.Close()

	s, err := NewRecognizer(logger.NewNop()).FindBoard(frame, d, false)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Recognized())
	assert.Equal(t, []string{"bottomRight"}, s.MissingCorners())
}

func TestFindBoardReusesCorners(t *testing.T) {
	frame := testimage.Board()
	defer frame.Close()

	d := NewDescriptor()
	defer d.Close()
	r := NewRecognizer(logger.NewNop())

	s, err := r.FindBoard(frame, d, false)
	require.NoError(t, err)
	require.True(t, s.Recognized())
	d.SetSnapshot(s)

	blank := testimage.Blank(1280, 800, testimage.White)
	defer blank.Close()

	reused, err := r.FindBoard(blank, d, false)
	require.NoError(t, err)
	assert.True(t, reused.Recognized())
	assert.Equal(t, s.Corners(), reused.Corners())
	assert.NotEqual(t, s.ID(), reused.ID())
	d.SetSnapshot(reused)

	forced, err := r.FindBoard(blank, d, true)
	require.NoError(t, err)
	defer forced.Close()
	assert.False(t, forced.Recognized())
}

func TestFindBoardRemembersWindows(t *testing.T) {
	frame := testimage.Board()
	defer frame.Close()

	d := NewDescriptor()
	defer d.Close()
	r := NewRecognizer(logger.NewNop())

	first, err := r.FindBoard(frame, d, true)
	require.NoError(t, err)
	defer first.Close()
	require.True(t, first.Recognized())
	for _, rect := range r.markerRects {
		assert.False(t, rect.Empty())
	}

	second, err := r.FindBoard(frame, d, true)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, first.Corners(), second.Corners())

	r.Reset()
	for _, rect := range r.markerRects {
		assert.True(t, rect.Empty())
	}
}

func TestFindBoardRejectsEmptyFrame(t *testing.T) {
	frame := gocv.NewMat()
	defer frame.Close()

	_, err := NewRecognizer(logger.NewNop()).FindBoard(frame, NewDescriptor(), false)
	assert.Error(t, err)
}

func squareMarkers(origin, side int) [4][]image.Point {
	tl := image.Pt(origin, origin)
	br := image.Pt(origin+side, origin+side)
	return [4][]image.Point{
		{tl, tl.Add(image.Pt(5, 5))},
		{image.Pt(br.X, tl.Y), image.Pt(br.X-5, tl.Y+5)},
		{image.Pt(tl.X, br.Y), image.Pt(tl.X+5, br.Y-5)},
		{br, br.Sub(image.Pt(5, 5))},
	}
}

func TestFindCornersNeedsHalfTheFrame(t *testing.T) {
	r := NewRecognizer(logger.NewNop())
	size := image.Pt(1000, 1000)
	boardSize := image.Pt(10, 10)

	// 710² is just over half of the frame, 700² just under
	_, ok := r.findCorners(squareMarkers(100, 710), size, boardSize)
	assert.True(t, ok)

	_, ok = r.findCorners(squareMarkers(100, 700), size, boardSize)
	assert.False(t, ok)

	// 60% of each side is only 36% of the frame
	_, ok = r.findCorners(squareMarkers(200, 600), size, boardSize)
	assert.False(t, ok)
}
