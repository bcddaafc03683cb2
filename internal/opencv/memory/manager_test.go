package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletop-tracker/internal/logger"
)

func TestTrackerCountsAllocations(t *testing.T) {
	tr, err := NewTracker(logger.NewNop())
	require.NoError(t, err)

	tr.TrackAllocation(1, 100, "snapshot")
	tr.TrackAllocation(2, 50, "area")
	tr.TrackDeallocation(1, "snapshot")

	stats := tr.Stats()
	assert.Equal(t, int64(150), stats.TotalAllocated)
	assert.Equal(t, int64(100), stats.TotalReleased)
	assert.Equal(t, int64(1), stats.ActiveMats)
	assert.Equal(t, int64(50), stats.ActiveBytes)
	assert.Equal(t, 1, tr.LogLeaks())
}

func TestTrackerIgnoresUnknownRelease(t *testing.T) {
	tr, err := NewTracker(logger.NewNop())
	require.NoError(t, err)

	tr.TrackDeallocation(42, "ghost")
	assert.Equal(t, Stats{}, tr.Stats())
}
