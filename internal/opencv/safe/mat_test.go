package safe

import (
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type recordingTracker struct {
	mu    sync.Mutex
	alive map[uint64]int64
}

func (r *recordingTracker) TrackAllocation(id uint64, size int64, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alive[id] = size
}

func (r *recordingTracker) TrackDeallocation(id uint64, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.alive, id)
}

func TestReleaseClosesOnLastReference(t *testing.T) {
	tracker := &recordingTracker{alive: map[uint64]int64{}}
	SetTracker(tracker)
	defer SetTracker(nil)

	m := Wrap(gocv.NewMatWithSize(4, 6, gocv.MatTypeCV8UC3), "test")
	assert.Equal(t, image.Point{X: 6, Y: 4}, m.Size())
	assert.Equal(t, int64(72), tracker.alive[m.ID()])

	m.AddRef()
	m.Release()
	assert.True(t, m.IsValid())

	m.Release()
	assert.False(t, m.IsValid())
	assert.Empty(t, tracker.alive)

	err := m.WithMat(func(gocv.Mat) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, image.Point{}, m.Size())
}

func TestNewMatFromMatCopies(t *testing.T) {
	src := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC1)
	defer src.Close()
	src.SetUCharAt(0, 0, 7)

	m, err := NewMatFromMat(src, "copy")
	require.NoError(t, err)
	defer m.Close()

	src.SetUCharAt(0, 0, 9)
	require.NoError(t, m.WithMat(func(mat gocv.Mat) error {
		assert.Equal(t, uint8(7), mat.GetUCharAt(0, 0))
		return nil
	}))
}

func TestNewMatFromMatRejectsEmpty(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := NewMatFromMat(empty, "empty")
	assert.Error(t, err)
}

func TestValidateFrame(t *testing.T) {
	ok := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3)
	defer ok.Close()
	assert.NoError(t, ValidateFrame(ok, "test"))

	float := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV32FC1)
	defer float.Close()
	assert.Error(t, ValidateFrame(float, "test"))

	empty := gocv.NewMat()
	defer empty.Close()
	assert.Error(t, ValidateFrame(empty, "test"))
}
