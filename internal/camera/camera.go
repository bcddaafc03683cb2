// Package camera supplies frames to the tracker: a live capture device
// grabbed in the background, or a fixed still image.
package camera

import (
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"tabletop-tracker/internal/logger"
)

// grabInterval is the pause between two grabs of the capture loop.
const grabInterval = 10 * time.Millisecond

// Source returns the most recent frame. The returned Mat is a copy owned by
// the caller; ok is false while no frame is available yet.
type Source interface {
	Read() (gocv.Mat, bool)
	Close() error
}

type Config struct {
	Device     int
	Resolution image.Point
	Framerate  int
}

// latest holds one frame shared between a producer and readers.
type latest struct {
	mu    sync.Mutex
	frame gocv.Mat
	set   bool
}

func (l *latest) store(m gocv.Mat) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set {
		l.frame.Close()
	}
	l.frame, l.set = m, true
}

func (l *latest) load() (gocv.Mat, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.set || l.frame.Empty() {
		return gocv.NewMat(), false
	}
	return l.frame.Clone(), true
}

func (l *latest) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.set {
		return nil
	}
	l.set = false
	return l.frame.Close()
}

// Device reads a capture device from a background goroutine.
type Device struct {
	capture *gocv.VideoCapture
	logger  logger.Logger
	frame   latest

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Open starts capturing from cfg.Device.
func Open(cfg Config, log logger.Logger) (*Device, error) {
	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("opening camera %d: %w", cfg.Device, err)
	}
	if cfg.Resolution.X > 0 && cfg.Resolution.Y > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Resolution.X))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Resolution.Y))
	}
	if cfg.Framerate > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	d := &Device{
		capture: capture,
		logger:  log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	d.grab()

	log.Info("Camera", "capture started", map[string]interface{}{
		"device": cfg.Device,
		"width":  cfg.Resolution.X,
		"height": cfg.Resolution.Y,
	})

	go d.run()
	return d, nil
}

func (d *Device) run() {
	defer close(d.done)

	ticker := time.NewTicker(grabInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.grab()
		}
	}
}

func (d *Device) grab() {
	m := gocv.NewMat()
	if ok := d.capture.Read(&m); !ok || m.Empty() {
		m.Close()
		return
	}
	d.frame.store(m)
}

func (d *Device) Read() (gocv.Mat, bool) {
	return d.frame.load()
}

// Close stops the capture loop and releases the device.
func (d *Device) Close() error {
	var err error
	d.once.Do(func() {
		close(d.stop)
		<-d.done
		err = multierr.Combine(d.frame.close(), d.capture.Close())
		d.logger.Info("Camera", "capture stopped", nil)
	})
	return err
}

// Still serves the same image on every read.
type Still struct {
	frame latest
}

// NewStill takes ownership of img.
func NewStill(img gocv.Mat) *Still {
	s := &Still{}
	s.frame.store(img)
	return s
}

// LoadStill reads an image file.
func LoadStill(path string) (*Still, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("reading image %s: empty or unsupported", path)
	}
	return NewStill(img), nil
}

// Set replaces the served image, taking ownership of img.
func (s *Still) Set(img gocv.Mat) {
	s.frame.store(img)
}

func (s *Still) Read() (gocv.Mat, bool) {
	return s.frame.load()
}

func (s *Still) Close() error {
	return s.frame.close()
}
