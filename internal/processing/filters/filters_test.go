package filters

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestGrayscale(t *testing.T) {
	for _, typ := range []gocv.MatType{gocv.MatTypeCV8UC3, gocv.MatTypeCV8UC4, gocv.MatTypeCV8U} {
		src := gocv.NewMatWithSize(10, 20, typ)
		gray, err := Grayscale(src)
		require.NoError(t, err)
		assert.Equal(t, 1, gray.Channels())
		assert.Equal(t, 20, gray.Cols())
		gray.Close()
		src.Close()
	}

	src := gocv.NewMatWithSize(10, 20, gocv.MatTypeCV8UC2)
	defer src.Close()
	gray, err := Grayscale(src)
	defer gray.Close()
	assert.Error(t, err)
}

func TestTrim(t *testing.T) {
	src := gocv.NewMatWithSize(100, 200, gocv.MatTypeCV8U)
	defer src.Close()

	trimmed := Trim(src, 0.1)
	defer trimmed.Close()
	assert.Equal(t, 160, trimmed.Cols())
	assert.Equal(t, 80, trimmed.Rows())

	whole := Trim(src, 0.6)
	defer whole.Close()
	assert.Equal(t, 200, whole.Cols(), "an empty trim keeps the whole image")
}

func TestCleanClosesGaps(t *testing.T) {
	src := gocv.NewMatWithSize(50, 50, gocv.MatTypeCV8U)
	defer src.Close()
	src.SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.Rectangle(&src, image.Rect(10, 10, 40, 40), color.RGBA{R: 255, G: 255, B: 255}, -1)
	gocv.Line(&src, image.Pt(25, 10), image.Pt(25, 39), color.RGBA{}, 1)

	cleaned := Clean(src, 3)
	defer cleaned.Close()
	assert.Equal(t, 30*30, gocv.CountNonZero(cleaned))
}

func TestBlurKeepsSize(t *testing.T) {
	src := gocv.NewMatWithSize(30, 40, gocv.MatTypeCV8UC3)
	defer src.Close()

	blurred := Blur(src, 3)
	defer blurred.Close()
	assert.Equal(t, 40, blurred.Cols())
	assert.Equal(t, 30, blurred.Rows())
}
