package board

import (
	"image"
	"sync"

	"github.com/golang/geo/r2"

	"tabletop-tracker/internal/marker"
	"tabletop-tracker/internal/opencv/safe"
	"tabletop-tracker/internal/processing/tier"
)

// DefaultBoardSize is the nominal board aspect used to validate recognitions.
var DefaultBoardSize = image.Point{X: 1280, Y: 800}

// Descriptor is the per-session board configuration plus the current snapshot.
type Descriptor struct {
	mu           sync.RWMutex
	cornerMarker marker.Marker
	border       r2.Point
	boardSize    image.Point
	snapshot     *Snapshot
}

func NewDescriptor() *Descriptor {
	return &Descriptor{
		cornerMarker: marker.NewDefaultMarker(-1),
		boardSize:    DefaultBoardSize,
	}
}

// Configure replaces the corner marker and the border fraction.
func (d *Descriptor) Configure(cornerMarker marker.Marker, border r2.Point) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cornerMarker != nil {
		d.cornerMarker = cornerMarker
	}
	d.border = border
}

func (d *Descriptor) SetBoardSize(size image.Point) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if size.X > 0 && size.Y > 0 {
		d.boardSize = size
	}
}

func (d *Descriptor) CornerMarker() marker.Marker {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cornerMarker
}

func (d *Descriptor) Border() r2.Point {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.border
}

func (d *Descriptor) BoardSize() image.Point {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.boardSize
}

// SetSnapshot publishes s and closes the snapshot it supersedes.
func (d *Descriptor) SetSnapshot(s *Snapshot) {
	d.mu.Lock()
	old := d.snapshot
	d.snapshot = s
	d.mu.Unlock()

	if old != nil && old != s {
		old.Close()
	}
}

// Snapshot returns the current snapshot, or nil before the first cycle.
// The snapshot may be superseded at any time; its accessors then return
// ErrSnapshotClosed.
func (d *Descriptor) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

func (d *Descriptor) IsRecognized() bool {
	s := d.Snapshot()
	return s != nil && s.Recognized()
}

// Canvas returns the border-cropped board of the current snapshot.
func (d *Descriptor) Canvas(t tier.Tier, gray bool) (*safe.Mat, uint64, error) {
	d.mu.RLock()
	s, border := d.snapshot, d.border
	d.mu.RUnlock()

	if s == nil || !s.Recognized() {
		return nil, 0, ErrNotRecognized
	}
	m, err := s.Canvas(t, border, gray)
	if err != nil {
		return nil, 0, err
	}
	return m, s.ID(), nil
}

// Close releases the current snapshot.
func (d *Descriptor) Close() {
	d.SetSnapshot(nil)
}
