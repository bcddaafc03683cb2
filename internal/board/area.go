package board

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"tabletop-tracker/internal/opencv/safe"
	"tabletop-tracker/internal/processing/histogram"
	"tabletop-tracker/internal/processing/tier"
)

// the motion model adapts fast so slow lighting drift does not count as motion
const stabilityLearningRate = 0.5

// Rect is a board-relative rectangle [x1, y1, x2, y2] in fractions of the canvas.
type Rect [4]float64

// FullBoard covers the whole canvas.
var FullBoard = Rect{0, 0, 1, 1}

// Validate checks that the rectangle lies inside the unit square and is not empty.
func (r Rect) Validate() error {
	for _, v := range r {
		if v < 0 || v > 1 {
			return fmt.Errorf("area rect %v outside [0, 1]", r)
		}
	}
	if r[2] <= r[0] || r[3] <= r[1] {
		return fmt.Errorf("area rect %v is empty", r)
	}
	return nil
}

// Pixels maps the rectangle onto an image of the given size.
func (r Rect) Pixels(size image.Point) image.Rectangle {
	w, h := float64(size.X), float64(size.Y)
	return image.Rect(int(w*r[0]), int(h*r[1]), int(w*r[2]), int(h*r[3]))
}

// Area is a region of interest on the board. Extracted images are cached per
// tier until the descriptor publishes a snapshot with a different id.
type Area struct {
	id         int
	rect       Rect
	descriptor *Descriptor

	mu         sync.Mutex
	snapshotID uint64
	images     map[tier.Tier]*safe.Mat
	grays      map[tier.Tier]*safe.Mat

	subtractor gocv.BackgroundSubtractorMOG2
	maskSize   image.Point
	stability  float64
}

func NewArea(id int, rect Rect, descriptor *Descriptor) *Area {
	return &Area{
		id:         id,
		rect:       rect,
		descriptor: descriptor,
		images:     make(map[tier.Tier]*safe.Mat),
		grays:      make(map[tier.Tier]*safe.Mat),
		subtractor: gocv.NewBackgroundSubtractorMOG2WithParams(5, 16, false),
		stability:  1,
	}
}

func (a *Area) ID() int { return a.id }

func (a *Area) Rect() Rect { return a.rect }

// Image returns the area cut out of the board canvas at tier t. The caller
// must Release the result.
func (a *Area) Image(t tier.Tier) (*safe.Mat, error) {
	return a.image(t, false)
}

// GrayImage is the single channel variant of Image.
func (a *Area) GrayImage(t tier.Tier) (*safe.Mat, error) {
	return a.image(t, true)
}

func (a *Area) image(t tier.Tier, gray bool) (*safe.Mat, error) {
	s := a.descriptor.Snapshot()
	if s == nil || !s.Recognized() {
		return nil, ErrNotRecognized
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if s.ID() != a.snapshotID {
		a.dropCaches()
		a.snapshotID = s.ID()
	}

	cache := a.images
	if gray {
		cache = a.grays
	}
	if m, ok := cache[t]; ok {
		m.AddRef()
		return m, nil
	}

	canvas, err := s.Canvas(t, a.descriptor.Border(), gray)
	if err != nil {
		return nil, err
	}
	defer canvas.Release()

	var extracted gocv.Mat
	err = canvas.WithMat(func(m gocv.Mat) error {
		region := a.rect.Pixels(image.Point{X: m.Cols(), Y: m.Rows()})
		if region.Empty() {
			return fmt.Errorf("area %d is empty at tier %s", a.id, t)
		}
		view := m.Region(region)
		defer view.Close()
		extracted = view.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	m := safe.Wrap(extracted, fmt.Sprintf("area_%d", a.id))
	cache[t] = m
	m.AddRef()
	return m, nil
}

// UpdateStabilityScore feeds the current small gray image into the motion
// model. Called once per lifecycle cycle.
func (a *Area) UpdateStabilityScore() error {
	img, err := a.GrayImage(tier.Small)
	if err != nil {
		return err
	}
	defer img.Release()

	a.mu.Lock()
	defer a.mu.Unlock()

	return img.WithMat(func(m gocv.Mat) error {
		input := m
		if a.maskSize != (image.Point{}) && (m.Cols() != a.maskSize.X || m.Rows() != a.maskSize.Y) {
			resized := gocv.NewMat()
			defer resized.Close()
			gocv.Resize(m, &resized, a.maskSize, 0, 0, gocv.InterpolationLinear)
			input = resized
		}

		mask := gocv.NewMat()
		defer mask.Close()
		if err := a.subtractor.ApplyWithLearningRate(input, &mask, stabilityLearningRate); err != nil {
			return fmt.Errorf("area %d: updating motion model: %w", a.id, err)
		}
		if mask.Empty() {
			return fmt.Errorf("area %d: empty foreground mask", a.id)
		}

		a.maskSize = image.Point{X: mask.Cols(), Y: mask.Rows()}
		a.stability = 1 - histogram.ImageLevel(mask)/255
		return nil
	})
}

// StabilityScore is 1 for a static area and falls towards 0 with motion.
func (a *Area) StabilityScore() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stability
}

func (a *Area) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.dropCaches()
	a.subtractor.Close()
}

func (a *Area) dropCaches() {
	for t, m := range a.images {
		m.Release()
		delete(a.images, t)
	}
	for t, m := range a.grays {
		m.Release()
		delete(a.grays, t)
	}
}
