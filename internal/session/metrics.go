package session

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "tabletop-tracker/internal/session"

type sessionMetrics struct {
	recognitions  metric.Int64Counter
	notifications metric.Int64Counter
	panics        metric.Int64Counter

	areas        metric.Int64ObservableGauge
	markers      metric.Int64ObservableGauge
	reporters    metric.Int64ObservableGauge
	registration metric.Registration
}

func newSessionMetrics(s *Session) (*sessionMetrics, error) {
	m := otel.Meter(instrumentationName)

	var (
		sm  sessionMetrics
		err error
	)
	sm.recognitions, err = m.Int64Counter(
		"tracker.board.recognitions",
		metric.WithDescription("Board recognition cycles by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating recognitions counter: %w", err)
	}

	sm.notifications, err = m.Int64Counter(
		"tracker.board.notifications",
		metric.WithDescription("Board state notifications sent to clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating notifications counter: %w", err)
	}

	sm.panics, err = m.Int64Counter(
		"tracker.lifecycle.panics",
		metric.WithDescription("Lifecycle cycles aborted by a panic"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating panics counter: %w", err)
	}

	sm.areas, err = m.Int64ObservableGauge(
		"tracker.session.areas",
		metric.WithDescription("Registered board areas"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating areas gauge: %w", err)
	}
	sm.markers, err = m.Int64ObservableGauge(
		"tracker.session.markers",
		metric.WithDescription("Registered markers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating markers gauge: %w", err)
	}
	sm.reporters, err = m.Int64ObservableGauge(
		"tracker.session.reporters",
		metric.WithDescription("Registered reporters"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reporters gauge: %w", err)
	}

	sm.registration, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(sm.areas, int64(s.countAreas()))
			o.ObserveInt64(sm.markers, int64(s.countMarkers()))
			o.ObserveInt64(sm.reporters, int64(s.countReporters()))
			return nil
		},
		sm.areas, sm.markers, sm.reporters,
	)
	if err != nil {
		return nil, fmt.Errorf("registering session callback: %w", err)
	}

	return &sm, nil
}

func (sm *sessionMetrics) recognition(ctx context.Context, status string) {
	sm.recognitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (sm *sessionMetrics) notification(ctx context.Context, event string) {
	sm.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}
