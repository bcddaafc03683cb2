package reporter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"tabletop-tracker/internal/logger"
)

const instrumentationName = "tabletop-tracker/internal/reporter"

// DefaultInterval is the pause between two polls of a reporter.
const DefaultInterval = 10 * time.Millisecond

// Metrics are shared by every runner of a session.
type Metrics struct {
	running   metric.Int64UpDownCounter
	completed metric.Int64Counter
	failures  metric.Int64Counter
}

// NewMetrics uses the global OTel meter (no-op if not configured).
func NewMetrics() (*Metrics, error) {
	m := otel.Meter(instrumentationName)

	var (
		mt  Metrics
		err error
	)
	mt.running, err = m.Int64UpDownCounter(
		"tracker.reporters.running",
		metric.WithDescription("Reporter goroutines currently polling"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating running counter: %w", err)
	}

	mt.completed, err = m.Int64Counter(
		"tracker.reporters.completed",
		metric.WithDescription("Reporters that fired their callback and finished"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating completed counter: %w", err)
	}

	mt.failures, err = m.Int64Counter(
		"tracker.reporters.failures",
		metric.WithDescription("Polls that returned an error or panicked"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}

	return &mt, nil
}

// Runner polls one reporter on its own goroutine until the reporter is done
// or Stop is called.
type Runner struct {
	reporter Reporter
	interval time.Duration
	logger   logger.Logger
	metrics  *Metrics

	stopped atomic.Bool
	done    chan struct{}
}

// Start launches the polling goroutine.
func Start(r Reporter, interval time.Duration, log logger.Logger, metrics *Metrics) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	runner := &Runner{
		reporter: r,
		interval: interval,
		logger:   log,
		metrics:  metrics,
		done:     make(chan struct{}),
	}

	log.Debug("Reporter", "starting reporter", map[string]interface{}{
		"id":   r.ID(),
		"kind": r.Kind(),
	})
	go runner.run()
	return runner
}

func (r *Runner) ID() int { return r.reporter.ID() }

func (r *Runner) Kind() string { return r.reporter.Kind() }

// Stop asks the runner to exit. A poll already in progress completes.
func (r *Runner) Stop() {
	if r.stopped.CompareAndSwap(false, true) {
		r.logger.Debug("Reporter", "stopping reporter", map[string]interface{}{
			"id": r.reporter.ID(),
		})
	}
}

func (r *Runner) Stopped() bool { return r.stopped.Load() }

// Done is closed when the goroutine has exited.
func (r *Runner) Done() <-chan struct{} { return r.done }

func (r *Runner) Wait() { <-r.done }

func (r *Runner) run() {
	attrs := metric.WithAttributes(attribute.String("kind", r.reporter.Kind()))
	ctx := context.Background()

	r.metrics.running.Add(ctx, 1, attrs)
	defer r.metrics.running.Add(ctx, -1, attrs)
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for range ticker.C {
		if r.stopped.Load() {
			return
		}

		outcome, err := r.poll()
		if err != nil {
			r.metrics.failures.Add(ctx, 1, attrs)
			r.logger.Error("Reporter", err, map[string]interface{}{
				"message": "poll failed",
				"id":      r.reporter.ID(),
				"kind":    r.reporter.Kind(),
			})
			continue
		}
		if outcome == Done {
			r.stopped.Store(true)
			r.metrics.completed.Add(ctx, 1, attrs)
			return
		}
	}
}

func (r *Runner) poll() (outcome Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reporter %d panicked: %v", r.reporter.ID(), p)
		}
	}()
	return r.reporter.Poll()
}
