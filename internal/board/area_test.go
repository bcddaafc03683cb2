package board

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"tabletop-tracker/internal/processing/filters"
	"tabletop-tracker/internal/processing/histogram"
	"tabletop-tracker/internal/processing/tier"
	"tabletop-tracker/internal/testimage"
)

func descriptorWith(t *testing.T, boardImage gocv.Mat) *Descriptor {
	t.Helper()
	d := NewDescriptor()
	d.SetSnapshot(recognizedSnapshot(t, boardImage))
	return d
}

func TestAreaRequiresRecognizedBoard(t *testing.T) {
	d := NewDescriptor()
	defer d.Close()
	a := NewArea(1, FullBoard, d)
	defer a.Close()

	_, err := a.Image(tier.Small)
	assert.ErrorIs(t, err, ErrNotRecognized)
	assert.ErrorIs(t, a.UpdateStabilityScore(), ErrNotRecognized)
	assert.Equal(t, 1.0, a.StabilityScore())
}

func TestAreaImageCachedPerSnapshot(t *testing.T) {
	d := descriptorWith(t, testimage.Blank(1280, 800, testimage.White))
	defer d.Close()
	a := NewArea(3, Rect{0, 0, 0.5, 0.25}, d)
	defer a.Close()

	first, err := a.Image(tier.Original)
	require.NoError(t, err)
	defer first.Release()
	assert.Equal(t, image.Pt(640, 200), first.Size())

	repeated, err := a.Image(tier.Original)
	require.NoError(t, err)
	defer repeated.Release()
	assert.Same(t, first, repeated)
	assert.Equal(t, first.ID(), repeated.ID())

	d.SetSnapshot(recognizedSnapshot(t, testimage.Blank(1280, 800, testimage.Black)))

	fresh, err := a.Image(tier.Original)
	require.NoError(t, err)
	defer fresh.Release()
	assert.NotEqual(t, first.ID(), fresh.ID())

	again, err := a.Image(tier.Original)
	require.NoError(t, err)
	defer again.Release()
	assert.Same(t, fresh, again)

	// the superseded image is still readable by its holder
	require.NoError(t, first.WithMat(func(m gocv.Mat) error {
		gray, err := filters.Grayscale(m)
		if err != nil {
			return err
		}
		defer gray.Close()
		assert.InDelta(t, 255, histogram.ImageLevel(gray), 1)
		return nil
	}))
}

func TestAreaGrayImage(t *testing.T) {
	d := descriptorWith(t, testimage.Blank(1280, 800, testimage.White))
	defer d.Close()
	a := NewArea(4, Rect{0.5, 0.5, 1, 1}, d)
	defer a.Close()

	gray, err := a.GrayImage(tier.Small)
	require.NoError(t, err)
	defer gray.Release()

	require.NoError(t, gray.WithMat(func(m gocv.Mat) error {
		assert.Equal(t, 1, m.Channels())
		assert.Equal(t, image.Pt(200, 125), image.Pt(m.Cols(), m.Rows()))
		return nil
	}))
}

func TestStabilityScore(t *testing.T) {
	d := descriptorWith(t, testimage.Blank(1280, 800, testimage.White))
	defer d.Close()
	a := NewArea(5, FullBoard, d)
	defer a.Close()

	for i := 0; i < 6; i++ {
		d.SetSnapshot(recognizedSnapshot(t, testimage.Blank(1280, 800, testimage.White)))
		require.NoError(t, a.UpdateStabilityScore())
	}
	assert.Greater(t, a.StabilityScore(), 0.9)

	d.SetSnapshot(recognizedSnapshot(t, testimage.Blank(1280, 800, testimage.Black)))
	require.NoError(t, a.UpdateStabilityScore())
	assert.Less(t, a.StabilityScore(), 0.5)
}

func TestStabilityScoreSettlesAfterChange(t *testing.T) {
	d := descriptorWith(t, testimage.Blank(1280, 800, testimage.White))
	defer d.Close()
	a := NewArea(6, FullBoard, d)
	defer a.Close()

	for i := 0; i < 4; i++ {
		d.SetSnapshot(recognizedSnapshot(t, testimage.Blank(1280, 800, testimage.White)))
		require.NoError(t, a.UpdateStabilityScore())
	}

	d.SetSnapshot(recognizedSnapshot(t, testimage.Blank(1280, 800, testimage.Black)))
	require.NoError(t, a.UpdateStabilityScore())
	require.Less(t, a.StabilityScore(), 0.5)

	for i := 0; i < 5; i++ {
		d.SetSnapshot(recognizedSnapshot(t, testimage.Blank(1280, 800, testimage.Black)))
		require.NoError(t, a.UpdateStabilityScore())
	}
	assert.Greater(t, a.StabilityScore(), 0.9)
}
