package reporter

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletop-tracker/internal/logger"
)

type fakeReporter struct {
	polls     atomic.Int32
	callbacks atomic.Int32
	doneAt    int32
	panicAt   int32
	failAt    int32
}

func (f *fakeReporter) ID() int      { return 42 }
func (f *fakeReporter) Kind() string { return "fake" }

func (f *fakeReporter) Poll() (Outcome, error) {
	n := f.polls.Add(1)
	switch n {
	case f.panicAt:
		panic("boom")
	case f.failAt:
		return Continue, errors.New("transient")
	case f.doneAt:
		f.callbacks.Add(1)
		return Done, nil
	}
	return Continue, nil
}

func newMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics()
	require.NoError(t, err)
	return m
}

func waitDone(t *testing.T, r *Runner) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not exit")
	}
}

func TestRunnerFinishesOnDone(t *testing.T) {
	f := &fakeReporter{doneAt: 3}
	r := Start(f, time.Millisecond, logger.NewNop(), newMetrics(t))
	waitDone(t, r)

	assert.Equal(t, int32(3), f.polls.Load())
	assert.Equal(t, int32(1), f.callbacks.Load())
	assert.True(t, r.Stopped())
	assert.Equal(t, 42, r.ID())
	assert.Equal(t, "fake", r.Kind())
}

func TestRunnerStop(t *testing.T) {
	f := &fakeReporter{}
	r := Start(f, time.Millisecond, logger.NewNop(), newMetrics(t))

	assert.Eventually(t, func() bool { return f.polls.Load() >= 2 }, time.Second, time.Millisecond)
	r.Stop()
	r.Stop()
	waitDone(t, r)

	polls := f.polls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, polls, f.polls.Load())
	assert.Zero(t, f.callbacks.Load())
}

func TestRunnerSurvivesPanicsAndErrors(t *testing.T) {
	f := &fakeReporter{panicAt: 1, failAt: 2, doneAt: 3}
	r := Start(f, time.Millisecond, logger.NewNop(), newMetrics(t))
	waitDone(t, r)

	assert.Equal(t, int32(3), f.polls.Load())
	assert.Equal(t, int32(1), f.callbacks.Load())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "DONE", Done.String())
	assert.Equal(t, "CONTINUE", Continue.String())
}
