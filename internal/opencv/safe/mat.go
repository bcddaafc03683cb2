package safe

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// ErrClosed is returned when a Mat is used after its last reference was released.
var ErrClosed = errors.New("mat is closed")

// MemoryTracker interface to avoid import cycles
type MemoryTracker interface {
	TrackAllocation(id uint64, size int64, tag string)
	TrackDeallocation(id uint64, tag string)
}

var (
	trackerMu      sync.RWMutex
	defaultTracker MemoryTracker
)

// SetTracker installs the tracker new Mats report to. Nil disables tracking.
func SetTracker(t MemoryTracker) {
	trackerMu.Lock()
	defer trackerMu.Unlock()
	defaultTracker = t
}

func currentTracker() MemoryTracker {
	trackerMu.RLock()
	defer trackerMu.RUnlock()
	return defaultTracker
}

// Mat is a reference counted gocv.Mat shared between goroutines. Readers
// take a reference with AddRef and drop it with Release; the native memory
// is freed when the count reaches zero.
type Mat struct {
	mat        gocv.Mat
	isValid    int32
	refCount   int32
	mu         sync.RWMutex
	id         uint64
	memTracker MemoryTracker
	tag        string
}

var nextMatID uint64

// Wrap takes ownership of m. The caller must not close m afterwards.
func Wrap(m gocv.Mat, tag string) *Mat {
	sm := &Mat{
		mat:        m,
		isValid:    1,
		refCount:   1,
		id:         atomic.AddUint64(&nextMatID, 1),
		memTracker: currentTracker(),
		tag:        tag,
	}

	if sm.memTracker != nil {
		sm.memTracker.TrackAllocation(sm.id, matBytes(m), tag)
	}

	// Set finalizer for cleanup if Release() is never called
	runtime.SetFinalizer(sm, (*Mat).finalize)
	return sm
}

// NewMatFromMat stores a deep copy of src.
func NewMatFromMat(src gocv.Mat, tag string) (*Mat, error) {
	if src.Empty() {
		return nil, fmt.Errorf("source Mat is empty")
	}
	if src.Rows() <= 0 || src.Cols() <= 0 {
		return nil, fmt.Errorf("source Mat has invalid dimensions: %dx%d", src.Cols(), src.Rows())
	}
	return Wrap(src.Clone(), tag), nil
}

func (sm *Mat) IsValid() bool {
	return atomic.LoadInt32(&sm.isValid) == 1
}

func (sm *Mat) ID() uint64 {
	return sm.id
}

func (sm *Mat) Tag() string {
	return sm.tag
}

// Size returns cols×rows, or the zero point once closed.
func (sm *Mat) Size() image.Point {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return image.Point{}
	}
	return image.Point{X: sm.mat.Cols(), Y: sm.mat.Rows()}
}

func (sm *Mat) Empty() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return true
	}
	return sm.mat.Empty()
}

// WithMat runs fn against the underlying Mat while holding a read lock.
// fn must not retain or close the Mat.
func (sm *Mat) WithMat(fn func(gocv.Mat) error) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return fmt.Errorf("%s #%d: %w", sm.tag, sm.id, ErrClosed)
	}
	return fn(sm.mat)
}

func (sm *Mat) AddRef() {
	atomic.AddInt32(&sm.refCount, 1)
}

func (sm *Mat) Release() {
	if atomic.AddInt32(&sm.refCount, -1) == 0 {
		sm.Close()
	}
}

// Close frees the native memory regardless of outstanding references.
func (sm *Mat) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if atomic.CompareAndSwapInt32(&sm.isValid, 1, 0) {
		if sm.memTracker != nil {
			sm.memTracker.TrackDeallocation(sm.id, sm.tag)
		}

		sm.mat.Close()

		// Clear finalizer since we're cleaning up manually
		runtime.SetFinalizer(sm, nil)
	}
}

// finalize is called by Go's garbage collector as last resort cleanup
func (sm *Mat) finalize() {
	if atomic.LoadInt32(&sm.isValid) == 1 {
		sm.Close()
	}
}

func matBytes(m gocv.Mat) int64 {
	if m.Empty() {
		return 0
	}
	return int64(m.Total()) * int64(m.ElemSize())
}
