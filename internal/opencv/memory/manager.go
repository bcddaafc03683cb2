// Package memory accounts for native image memory held by safe.Mat values
// and exposes it as OpenTelemetry gauges.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"tabletop-tracker/internal/logger"
)

const instrumentationName = "tabletop-tracker/internal/opencv/memory"

type allocation struct {
	size int64
	tag  string
}

// Stats is a point-in-time copy of the tracker counters.
type Stats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveMats     int64
	ActiveBytes    int64
}

// Tracker implements safe.MemoryTracker.
type Tracker struct {
	mu          sync.RWMutex
	allocations map[uint64]allocation
	stats       Stats
	logger      logger.Logger

	activeMats  metric.Int64ObservableGauge
	activeBytes metric.Int64ObservableGauge
}

// NewTracker uses the global OTel meter (no-op if not configured).
func NewTracker(log logger.Logger) (*Tracker, error) {
	t := &Tracker{
		allocations: make(map[uint64]allocation),
		logger:      log,
	}

	m := otel.Meter(instrumentationName)

	var err error
	t.activeMats, err = m.Int64ObservableGauge(
		"tracker.mats.active",
		metric.WithDescription("Native image buffers currently alive"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating active mats gauge: %w", err)
	}

	t.activeBytes, err = m.Int64ObservableGauge(
		"tracker.mats.bytes",
		metric.WithDescription("Bytes held by live native image buffers"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating active bytes gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			t.mu.RLock()
			defer t.mu.RUnlock()

			byTag := make(map[string][2]int64)
			for _, a := range t.allocations {
				v := byTag[a.tag]
				v[0]++
				v[1] += a.size
				byTag[a.tag] = v
			}
			for tag, v := range byTag {
				attrs := metric.WithAttributes(attribute.String("tag", tag))
				o.ObserveInt64(t.activeMats, v[0], attrs)
				o.ObserveInt64(t.activeBytes, v[1], attrs)
			}
			return nil
		},
		t.activeMats, t.activeBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("registering memory callback: %w", err)
	}

	return t, nil
}

func (t *Tracker) TrackAllocation(id uint64, size int64, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.allocations[id] = allocation{size: size, tag: tag}
	t.stats.TotalAllocated += size
	t.stats.ActiveMats++
	t.stats.ActiveBytes += size
}

func (t *Tracker) TrackDeallocation(id uint64, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.allocations[id]
	if !ok {
		t.logger.Warning("MemoryTracker", "release of untracked Mat", map[string]interface{}{
			"id":  id,
			"tag": tag,
		})
		return
	}

	delete(t.allocations, id)
	t.stats.TotalReleased += a.size
	t.stats.ActiveMats--
	t.stats.ActiveBytes -= a.size
}

func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// LogLeaks reports every allocation still alive, typically at shutdown.
func (t *Tracker) LogLeaks() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for id, a := range t.allocations {
		t.logger.Debug("MemoryTracker", "Mat still alive", map[string]interface{}{
			"id":   id,
			"tag":  a.tag,
			"size": a.size,
		})
	}
	return len(t.allocations)
}
