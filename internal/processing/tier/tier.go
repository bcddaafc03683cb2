// Package tier defines the fixed resolution tiers board images are cached at.
package tier

import (
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"
)

type Tier int

const (
	ExtraSmall Tier = iota
	Small
	Medium
	Large
	Original
)

// All lists every tier from smallest to full resolution.
var All = []Tier{ExtraSmall, Small, Medium, Large, Original}

var maxWidths = map[Tier]int{
	ExtraSmall: 200,
	Small:      400,
	Medium:     640,
	Large:      960,
}

func (t Tier) String() string {
	switch t {
	case ExtraSmall:
		return "EXTRA_SMALL"
	case Small:
		return "SMALL"
	case Medium:
		return "MEDIUM"
	case Large:
		return "LARGE"
	case Original:
		return "ORIGINAL"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Parse accepts the names produced by String, case-insensitively.
func Parse(name string) (Tier, error) {
	for _, t := range All {
		if strings.EqualFold(t.String(), name) {
			return t, nil
		}
	}
	return Original, fmt.Errorf("unknown resolution tier %q", name)
}

// Size returns the dimensions an image of size src has at this tier. Aspect
// ratio is preserved and images are never upscaled.
func (t Tier) Size(src image.Point) image.Point {
	limit, ok := maxWidths[t]
	if !ok || src.X <= limit || src.X <= 0 {
		return src
	}
	height := int(float64(src.Y) * float64(limit) / float64(src.X))
	return image.Point{X: limit, Y: max(height, 1)}
}

// Resize returns a new Mat holding src at this tier. The caller owns the result.
func (t Tier) Resize(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	size := t.Size(image.Point{X: src.Cols(), Y: src.Rows()})
	if size.X == src.Cols() && size.Y == src.Rows() {
		src.CopyTo(&dst)
		return dst
	}
	gocv.Resize(src, &dst, size, 0, 0, gocv.InterpolationArea)
	return dst
}
