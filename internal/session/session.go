// Package session owns everything one client session works with: the
// camera, the board descriptor and recognizer, and the registries of areas,
// markers and reporters. Each of them is guarded by its own lock.
package session

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r2"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"tabletop-tracker/internal/board"
	"tabletop-tracker/internal/brick"
	"tabletop-tracker/internal/camera"
	"tabletop-tracker/internal/logger"
	"tabletop-tracker/internal/marker"
	"tabletop-tracker/internal/reporter"
)

// maxRandomID is the upper bound of generated ids.
const maxRandomID = 100000

// DefaultResolution is the camera resolution used when Reset is given none.
var DefaultResolution = image.Point{X: 640, Y: 480}

// BoardEvent tells listeners the board was recognized again or has been
// lost for longer than the notify delay.
type BoardEvent struct {
	Recognized     bool
	MissingCorners []string
}

type Notifier interface {
	BoardChanged(BoardEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(BoardEvent)

func (f NotifierFunc) BoardChanged(e BoardEvent) { f(e) }

type Options struct {
	BoardSize                image.Point
	NotRecognizedNotifyDelay time.Duration
	PollInterval             time.Duration
	ReporterInterval         time.Duration
	ScreenshotDir            string
	Brick                    brick.Config
	// OpenCamera opens a frame source at the requested resolution. Called
	// by Reset.
	OpenCamera func(resolution image.Point) (camera.Source, error)
}

func DefaultOptions() Options {
	return Options{
		BoardSize:                board.DefaultBoardSize,
		NotRecognizedNotifyDelay: 3 * time.Second,
		PollInterval:             10 * time.Millisecond,
		ReporterInterval:         reporter.DefaultInterval,
		ScreenshotDir:            "debug",
		Brick:                    brick.DefaultConfig(),
	}
}

// registeredArea is *board.Area or *board.TiledArea.
type registeredArea interface {
	reporter.Area
	UpdateStabilityScore() error
	Close()
}

type Session struct {
	opts     Options
	logger   logger.Logger
	detector *brick.Detector
	metrics  *sessionMetrics
	runners  *reporter.Metrics
	debug    atomic.Bool

	notifyMu sync.Mutex
	notifier Notifier

	cameraMu sync.Mutex
	camera   camera.Source

	boardMu     sync.Mutex
	descriptor  *board.Descriptor
	recognizer  *board.Recognizer
	initialized bool

	areasMu sync.Mutex
	areas   map[int]registeredArea

	markersMu sync.Mutex
	markers   map[int]marker.Marker

	reportersMu sync.Mutex
	reporters   map[int]*reporter.Runner

	now func() time.Time
}

func New(opts Options, log logger.Logger) (*Session, error) {
	defaults := DefaultOptions()
	if opts.BoardSize == (image.Point{}) {
		opts.BoardSize = defaults.BoardSize
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.ReporterInterval <= 0 {
		opts.ReporterInterval = defaults.ReporterInterval
	}
	if opts.Brick == (brick.Config{}) {
		opts.Brick = defaults.Brick
	}

	detector, err := brick.NewDetector(opts.Brick, log)
	if err != nil {
		return nil, err
	}
	runners, err := reporter.NewMetrics()
	if err != nil {
		return nil, err
	}

	s := &Session{
		opts:       opts,
		logger:     log,
		detector:   detector,
		runners:    runners,
		descriptor: newDescriptor(opts.BoardSize),
		recognizer: board.NewRecognizer(log),
		areas:      make(map[int]registeredArea),
		markers:    make(map[int]marker.Marker),
		reporters:  make(map[int]*reporter.Runner),
		now:        time.Now,
	}
	s.metrics, err = newSessionMetrics(s)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newDescriptor(size image.Point) *board.Descriptor {
	d := board.NewDescriptor()
	d.SetBoardSize(size)
	return d
}

// SetNotifier replaces the listener for board events.
func (s *Session) SetNotifier(n Notifier) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.notifier = n
}

func (s *Session) notify(e BoardEvent) {
	s.notifyMu.Lock()
	n := s.notifier
	s.notifyMu.Unlock()

	if n != nil {
		n.BoardChanged(e)
	}
}

// Reset stops every reporter, removes every area and marker, forgets the
// board configuration and reopens the camera at resolution.
func (s *Session) Reset(resolution image.Point) error {
	if resolution.X <= 0 || resolution.Y <= 0 {
		resolution = DefaultResolution
	}

	s.StopAllReporters()
	s.RemoveAreas()
	s.RemoveMarkers()

	s.boardMu.Lock()
	s.descriptor.Close()
	s.descriptor = newDescriptor(s.opts.BoardSize)
	s.recognizer.Reset()
	s.initialized = false
	s.boardMu.Unlock()

	s.cameraMu.Lock()
	defer s.cameraMu.Unlock()

	var err error
	if s.camera != nil {
		err = s.camera.Close()
		s.camera = nil
	}
	if s.opts.OpenCamera == nil {
		return err
	}

	src, openErr := s.opts.OpenCamera(resolution)
	if openErr != nil {
		return multierr.Append(err, fmt.Errorf("opening camera: %w", openErr))
	}
	s.camera = src

	s.logger.Info("Session", "session reset", map[string]interface{}{
		"width":  resolution.X,
		"height": resolution.Y,
	})
	return err
}

// SetCamera installs src as the frame source, closing the previous one.
func (s *Session) SetCamera(src camera.Source) error {
	s.cameraMu.Lock()
	defer s.cameraMu.Unlock()

	var err error
	if s.camera != nil {
		err = s.camera.Close()
	}
	s.camera = src
	return err
}

// InitializeBoard configures the corner marker and the border fraction and
// starts board recognition.
func (s *Session) InitializeBoard(border r2.Point, cornerMarker string) error {
	if border.X < 0 || border.X >= 0.5 || border.Y < 0 || border.Y >= 0.5 {
		return fmt.Errorf("border must be between 0 and 0.5, got: %v", border)
	}

	s.boardMu.Lock()
	defer s.boardMu.Unlock()

	s.descriptor.Configure(marker.NewCornerMarker(cornerMarker), border)
	s.descriptor.SetSnapshot(nil)
	s.recognizer.Reset()
	s.initialized = true

	s.logger.Info("Session", "board initialized", map[string]interface{}{
		"border_x":     border.X,
		"border_y":     border.Y,
		"cornerMarker": cornerMarker,
	})
	return nil
}

func (s *Session) EnableDebug() {
	s.debug.Store(true)
	s.logger.Info("Session", "debug output enabled", nil)
}

func (s *Session) DebugEnabled() bool { return s.debug.Load() }

// readFrame returns a copy of the latest camera frame.
func (s *Session) readFrame() (gocv.Mat, error) {
	s.cameraMu.Lock()
	defer s.cameraMu.Unlock()

	if s.camera == nil {
		return gocv.Mat{}, ErrCameraNotReady
	}
	frame, ok := s.camera.Read()
	if !ok {
		frame.Close()
		return gocv.Mat{}, ErrCameraNotReady
	}
	return frame, nil
}

// TakeScreenshot writes the latest camera frame as PNG and returns the path.
// An empty filename picks a timestamped name in the screenshot directory.
func (s *Session) TakeScreenshot(filename string) (string, error) {
	frame, err := s.readFrame()
	if err != nil {
		return "", err
	}
	defer frame.Close()

	if filename == "" {
		filename = filepath.Join(s.opts.ScreenshotDir,
			fmt.Sprintf("board_%s.png", s.now().Format("2006-01-02-150405")))
	}
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating screenshot directory: %w", err)
		}
	}
	if !gocv.IMWrite(filename, frame) {
		return "", fmt.Errorf("writing screenshot %s", filename)
	}

	s.logger.Debug("Session", "screenshot written", map[string]interface{}{
		"file": filename,
	})
	return filename, nil
}

// randomID picks a free id in [0, maxRandomID].
func randomID(taken func(int) bool) int {
	for {
		id := rand.Intn(maxRandomID + 1)
		if !taken(id) {
			return id
		}
	}
}

// Close stops all reporters and releases every resource of the session.
func (s *Session) Close() error {
	s.StopAllReporters()
	s.RemoveAreas()
	s.RemoveMarkers()

	s.boardMu.Lock()
	s.descriptor.Close()
	s.boardMu.Unlock()

	err := s.metrics.registration.Unregister()

	s.cameraMu.Lock()
	if s.camera != nil {
		err = multierr.Append(err, s.camera.Close())
		s.camera = nil
	}
	s.cameraMu.Unlock()

	return err
}

// Shutdown implements shutdown.Shutdownable.
func (s *Session) Shutdown(context.Context) error {
	return s.Close()
}
