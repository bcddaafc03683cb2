package board

import (
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"tabletop-tracker/internal/geometry"
	"tabletop-tracker/internal/logger"
	"tabletop-tracker/internal/marker"
	"tabletop-tracker/internal/opencv/safe"
	"tabletop-tracker/internal/processing/contours"
	"tabletop-tracker/internal/processing/filters"
	"tabletop-tracker/internal/processing/threshold"
)

const (
	searchWindowFraction = 0.1
	minBoardAreaFraction = 0.5
	maxAspectDeviation   = 0.25
)

var maxCornerCosine = math.Cos(75 * math.Pi / 180)

// quadrants in the order corner markers are searched and reported
var quadrants = [4]struct {
	part image.Point
	name string
}{
	{image.Pt(0, 0), geometry.TopLeft.String()},
	{image.Pt(1, 0), geometry.TopRight.String()},
	{image.Pt(0, 1), geometry.BottomLeft.String()},
	{image.Pt(1, 1), geometry.BottomRight.String()},
}

// Recognizer finds the four corner markers of the board in camera frames.
// It remembers where each marker was last seen and searches there first.
type Recognizer struct {
	mu          sync.Mutex
	markerRects [4]image.Rectangle
	logger      logger.Logger
}

func NewRecognizer(log logger.Logger) *Recognizer {
	return &Recognizer{logger: log}
}

type search struct {
	size   image.Point
	window image.Point
	marker marker.Marker
}

// FindBoard recognizes the board in frame. When d already holds a recognized
// snapshot and force is false the known corners are reused without searching.
// The returned snapshot is never nil when err is nil.
func (r *Recognizer) FindBoard(frame gocv.Mat, d *Descriptor, force bool) (*Snapshot, error) {
	if err := safe.ValidateFrame(frame, "FindBoard"); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current := d.Snapshot(); current != nil && current.Recognized() && !force {
		warped, err := Warp(frame, current.Corners())
		if err != nil {
			return nil, err
		}
		return NewRecognizedSnapshot(frame, warped, current.Corners())
	}

	gray, err := filters.Grayscale(frame)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	s := search{
		size:   image.Point{X: gray.Cols(), Y: gray.Rows()},
		marker: d.CornerMarker(),
	}
	s.window = image.Point{
		X: int(float64(s.size.X) * searchWindowFraction),
		Y: int(float64(s.size.Y) * searchWindowFraction),
	}

	var found [4][]image.Point

	// last known windows first, every mode
	for _, mode := range threshold.Priority {
		for i := range quadrants {
			if found[i] != nil || r.markerRects[i].Empty() {
				continue
			}
			if rect, contour, ok := r.findMarker(gray, s, quadrants[i].part, r.markerRects[i], mode); ok {
				r.markerRects[i], found[i] = rect, contour
			}
		}
	}

	// then the whole quadrant
	for _, mode := range threshold.Priority {
		for i := range quadrants {
			if found[i] != nil {
				continue
			}
			if rect, contour, ok := r.findMarker(gray, s, quadrants[i].part, image.Rectangle{}, mode); ok {
				r.markerRects[i], found[i] = rect, contour
			}
		}
	}

	var missing []string
	for i, c := range found {
		if c == nil {
			missing = append(missing, quadrants[i].name)
		}
	}
	if len(missing) > 0 {
		r.logger.Debug("Recognizer", "corner markers missing", map[string]interface{}{
			"missing": missing,
		})
		return NewUnrecognizedSnapshot(frame, missing)
	}

	corners, ok := r.findCorners(found, s.size, d.BoardSize())
	if !ok {
		r.logger.Debug("Recognizer", "corner combination rejected", map[string]interface{}{
			"corners": fmt.Sprint(corners),
		})
		return NewUnrecognizedSnapshot(frame, nil)
	}

	warped, err := Warp(frame, corners)
	if err != nil {
		return nil, err
	}
	return NewRecognizedSnapshot(frame, warped, corners)
}

// Reset forgets the last known marker windows.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markerRects = [4]image.Rectangle{}
}

// findMarker searches one quadrant. A non-empty previous window is searched
// alone; otherwise a window slides over the quadrant at half-window stride.
func (r *Recognizer) findMarker(gray gocv.Mat, s search, part image.Point, previous image.Rectangle, mode threshold.Mode) (image.Rectangle, []image.Point, bool) {
	if !previous.Empty() {
		if contour := r.findMarkerInRect(gray, previous, mode, s.marker); contour != nil {
			return s.centeredRect(contour), contour, true
		}
		return image.Rectangle{}, nil, false
	}

	partSize := s.size.Div(2)
	offset := image.Point{X: part.X * partSize.X, Y: part.Y * partSize.Y}
	stepX := max(s.window.X/2, 1)
	stepY := max(s.window.Y/2, 1)

	for y := offset.Y; y < offset.Y+partSize.Y; y += stepY {
		for x := offset.X; x < offset.X+partSize.X; x += stepX {
			bx := max(min(x, offset.X+partSize.X-s.window.X), 0)
			by := max(min(y, offset.Y+partSize.Y-s.window.Y), 0)
			rect := image.Rect(bx, by, bx+s.window.X, by+s.window.Y)

			contour := r.findMarkerInRect(gray, rect, mode, s.marker)
			if contour == nil {
				continue
			}

			// re-verify centred so a marker clipped by the window edge is not accepted half found
			if centered := r.findMarkerInRect(gray, s.centeredRect(contour), mode, s.marker); centered != nil {
				return s.centeredRect(centered), centered, true
			}
			return s.centeredRect(contour), contour, true
		}
	}
	return image.Rectangle{}, nil, false
}

func (r *Recognizer) findMarkerInRect(gray gocv.Mat, rect image.Rectangle, mode threshold.Mode, m marker.Marker) []image.Point {
	rect = rect.Intersect(image.Rect(0, 0, gray.Cols(), gray.Rows()))
	if rect.Empty() {
		return nil
	}

	view := gray.Region(rect)
	defer view.Close()

	binary := threshold.Apply(view, mode)
	defer binary.Close()

	result, err := m.FindInThresholdedImage(binary)
	if err != nil {
		r.logger.Error("Recognizer", err, map[string]interface{}{
			"message": "corner marker search failed",
			"mode":    mode.String(),
		})
		return nil
	}
	if result == nil || len(result.RawContour) == 0 {
		return nil
	}
	return geometry.Translate(result.RawContour, rect.Min)
}

// centeredRect is a search window centred on the contour, kept inside the image.
func (s search) centeredRect(contour []image.Point) image.Rectangle {
	b := contours.BoundingRect(contour)
	x := max(0, min(s.size.X-s.window.X, b.Min.X+(b.Dx()-s.window.X)/2))
	y := max(0, min(s.size.Y-s.window.Y, b.Min.Y+(b.Dy()-s.window.Y)/2))
	return image.Rect(x, y, x+s.window.X, y+s.window.Y)
}

// findCorners merges the marker contours into the board quadrilateral and
// validates its area, aspect ratio and angles.
func (r *Recognizer) findCorners(markers [4][]image.Point, size, boardSize image.Point) ([4]image.Point, bool) {
	var all []image.Point
	for _, c := range markers {
		all = append(all, c...)
	}
	corners, err := geometry.OrderCorners(all)
	if err != nil {
		return corners, false
	}
	quad := corners[:]

	minArea := float64(size.X*size.Y) * minBoardAreaFraction
	if contours.Area(quad) < minArea {
		return corners, false
	}

	rect := contours.MinAreaRect(quad)
	if rect.Width <= 0 || rect.Height <= 0 {
		return corners, false
	}
	w, h := float64(rect.Width), float64(rect.Height)
	aspect := max(w/h, h/w)
	expected := float64(max(boardSize.X, boardSize.Y)) / float64(min(boardSize.X, boardSize.Y))
	if math.Abs(aspect-expected) > maxAspectDeviation {
		return corners, false
	}

	if geometry.MaxCosine(quad) > maxCornerCosine {
		return corners, false
	}
	return corners, true
}
