package tier

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestSize(t *testing.T) {
	full := image.Pt(1280, 800)

	assert.Equal(t, image.Pt(400, 250), Small.Size(full))
	assert.Equal(t, image.Pt(640, 400), Medium.Size(full))
	assert.Equal(t, full, Original.Size(full))
	assert.Equal(t, image.Pt(100, 50), ExtraSmall.Size(image.Pt(100, 50)), "never upscales")
}

func TestParse(t *testing.T) {
	for _, tier := range All {
		got, err := Parse(tier.String())
		require.NoError(t, err)
		assert.Equal(t, tier, got)
	}

	got, err := Parse("medium")
	require.NoError(t, err)
	assert.Equal(t, Medium, got)

	_, err = Parse("huge")
	assert.Error(t, err)
}

func TestResize(t *testing.T) {
	src := gocv.NewMatWithSize(800, 1280, gocv.MatTypeCV8UC3)
	defer src.Close()

	small := Small.Resize(src)
	defer small.Close()
	assert.Equal(t, 400, small.Cols())
	assert.Equal(t, 250, small.Rows())

	same := Original.Resize(src)
	defer same.Close()
	assert.Equal(t, 1280, same.Cols())
}
