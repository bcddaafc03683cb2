package histogram

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

func gray(w, h int, v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, 0, 0, 0), h, w, gocv.MatTypeCV8U)
}

func TestImageLevel(t *testing.T) {
	white := gray(20, 10, 255)
	defer white.Close()
	assert.InDelta(t, 255, ImageLevel(white), 1e-9)

	half := gray(20, 10, 0)
	defer half.Close()
	gocv.Rectangle(&half, image.Rect(10, 0, 20, 10), color.RGBA{R: 255, G: 255, B: 255}, -1)
	assert.InDelta(t, 127.5, ImageLevel(half), 1e-9)
}

func TestCompute(t *testing.T) {
	img := gray(8, 4, 100)
	defer img.Close()

	hist := Compute(img, 256)
	assert.Len(t, hist, 256)
	assert.Equal(t, 32.0, hist[100])

	total := 0.0
	for _, v := range hist {
		total += v
	}
	assert.Equal(t, 32.0, total)
}

func TestRange(t *testing.T) {
	lo, hi, ok := Range([]float64{0, 0, 3, 0, 5, 0})
	assert.True(t, ok)
	assert.Equal(t, 2, lo)
	assert.Equal(t, 4, hi)

	_, _, ok = Range(make([]float64, 4))
	assert.False(t, ok)
}

func TestLevelWithoutPixels(t *testing.T) {
	assert.Zero(t, Level([]float64{1, 2, 3}, 0))
}
