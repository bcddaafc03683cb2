// Package board holds the recognized board state: the recognizer that finds
// the board in a camera frame, the immutable snapshots it produces and the
// areas that cut regions of interest out of them.
package board

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"tabletop-tracker/internal/opencv/safe"
	"tabletop-tracker/internal/processing/filters"
	"tabletop-tracker/internal/processing/tier"
)

var (
	// ErrNotRecognized is returned by image accessors while no board is recognized.
	ErrNotRecognized = errors.New("board not recognized")
	// ErrSnapshotClosed is returned when a superseded snapshot is used.
	ErrSnapshotClosed = errors.New("snapshot superseded")
)

// Status is the outcome of one recognition attempt.
type Status int

const (
	NotRecognized Status = iota
	Recognized
)

func (s Status) String() string {
	if s == Recognized {
		return "RECOGNIZED"
	}
	return "NOT_RECOGNIZED"
}

var nextSnapshotID uint64

type canvasKey struct {
	tier   tier.Tier
	border r2.Point
	gray   bool
}

// Snapshot is the result of one recognition cycle. Its identity, status and
// corners never change; resized and cropped images are derived lazily and
// cached until the snapshot is closed.
//
// Image accessors return a reference the caller must Release.
type Snapshot struct {
	id             uint64
	status         Status
	corners        [4]image.Point
	missingCorners []string

	camera *safe.Mat
	board  *safe.Mat

	mu       sync.Mutex
	closed   bool
	images   map[tier.Tier]*safe.Mat
	grays    map[tier.Tier]*safe.Mat
	canvases map[canvasKey]*safe.Mat
}

func newSnapshot(status Status, camera gocv.Mat) (*Snapshot, error) {
	cam, err := safe.NewMatFromMat(camera, "camera")
	if err != nil {
		return nil, fmt.Errorf("storing camera frame: %w", err)
	}
	return &Snapshot{
		id:       atomic.AddUint64(&nextSnapshotID, 1),
		status:   status,
		camera:   cam,
		images:   make(map[tier.Tier]*safe.Mat),
		grays:    make(map[tier.Tier]*safe.Mat),
		canvases: make(map[canvasKey]*safe.Mat),
	}, nil
}

// NewRecognizedSnapshot copies camera and takes ownership of boardImage.
func NewRecognizedSnapshot(camera, boardImage gocv.Mat, corners [4]image.Point) (*Snapshot, error) {
	s, err := newSnapshot(Recognized, camera)
	if err != nil {
		boardImage.Close()
		return nil, err
	}
	s.corners = corners
	s.board = safe.Wrap(boardImage, "board")
	return s, nil
}

// NewUnrecognizedSnapshot copies camera. missing lists the corner names that
// could not be found; it is empty when all corners were found but their
// combination was rejected.
func NewUnrecognizedSnapshot(camera gocv.Mat, missing []string) (*Snapshot, error) {
	s, err := newSnapshot(NotRecognized, camera)
	if err != nil {
		return nil, err
	}
	s.missingCorners = append([]string(nil), missing...)
	return s, nil
}

func (s *Snapshot) ID() uint64 { return s.id }

func (s *Snapshot) Status() Status { return s.status }

func (s *Snapshot) Recognized() bool { return s.status == Recognized }

// Corners returns the board corners in camera coordinates ordered top-left,
// top-right, bottom-right, bottom-left.
func (s *Snapshot) Corners() [4]image.Point { return s.corners }

func (s *Snapshot) MissingCorners() []string {
	return append([]string(nil), s.missingCorners...)
}

// CameraImage returns the frame the snapshot was recognized from.
func (s *Snapshot) CameraImage() (*safe.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSnapshotClosed
	}
	s.camera.AddRef()
	return s.camera, nil
}

// BoardImage returns the perspective corrected board at tier t.
func (s *Snapshot) BoardImage(t tier.Tier) (*safe.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.boardImage(t)
	if err != nil {
		return nil, err
	}
	m.AddRef()
	return m, nil
}

// GrayBoardImage is the single channel variant of BoardImage.
func (s *Snapshot) GrayBoardImage(t tier.Tier) (*safe.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.grayBoardImage(t)
	if err != nil {
		return nil, err
	}
	m.AddRef()
	return m, nil
}

// Canvas returns the board image at tier t with border, a fraction of the
// width and height, cut from every side.
func (s *Snapshot) Canvas(t tier.Tier, border r2.Point, gray bool) (*safe.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := canvasKey{tier: t, border: border, gray: gray}
	if m, ok := s.canvases[key]; ok {
		m.AddRef()
		return m, nil
	}

	var (
		src *safe.Mat
		err error
	)
	if gray {
		src, err = s.grayBoardImage(t)
	} else {
		src, err = s.boardImage(t)
	}
	if err != nil {
		return nil, err
	}

	var canvas gocv.Mat
	err = src.WithMat(func(m gocv.Mat) error {
		region := BorderRegion(image.Point{X: m.Cols(), Y: m.Rows()}, border)
		if region.Empty() {
			return fmt.Errorf("border %v leaves no canvas", border)
		}
		view := m.Region(region)
		defer view.Close()
		canvas = view.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	tag := "canvas"
	if gray {
		tag = "canvas_gray"
	}
	m := safe.Wrap(canvas, tag)
	s.canvases[key] = m
	m.AddRef()
	return m, nil
}

// BorderRegion is the non-border part of an image of the given size.
func BorderRegion(size image.Point, border r2.Point) image.Rectangle {
	bx := int(float64(size.X) * border.X)
	by := int(float64(size.Y) * border.Y)
	return image.Rect(bx, by, size.X-bx, size.Y-by)
}

func (s *Snapshot) boardImage(t tier.Tier) (*safe.Mat, error) {
	if s.closed {
		return nil, ErrSnapshotClosed
	}
	if s.board == nil {
		return nil, ErrNotRecognized
	}
	if t == tier.Original {
		return s.board, nil
	}
	if m, ok := s.images[t]; ok {
		return m, nil
	}

	var resized gocv.Mat
	if err := s.board.WithMat(func(m gocv.Mat) error {
		resized = t.Resize(m)
		return nil
	}); err != nil {
		return nil, err
	}
	m := safe.Wrap(resized, "board_"+t.String())
	s.images[t] = m
	return m, nil
}

func (s *Snapshot) grayBoardImage(t tier.Tier) (*safe.Mat, error) {
	if m, ok := s.grays[t]; ok && !s.closed {
		return m, nil
	}
	src, err := s.boardImage(t)
	if err != nil {
		return nil, err
	}

	var gray gocv.Mat
	if err := src.WithMat(func(m gocv.Mat) error {
		var err error
		gray, err = filters.Grayscale(m)
		return err
	}); err != nil {
		return nil, err
	}
	m := safe.Wrap(gray, "board_gray_"+t.String())
	s.grays[t] = m
	return m, nil
}

// Close drops the snapshot's own references. Images already handed out stay
// valid until released.
func (s *Snapshot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for _, m := range s.images {
		m.Release()
	}
	for _, m := range s.grays {
		m.Release()
	}
	for _, m := range s.canvases {
		m.Release()
	}
	s.images, s.grays, s.canvases = nil, nil, nil

	s.camera.Release()
	if s.board != nil {
		s.board.Release()
	}
}
