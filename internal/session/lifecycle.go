package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"

	"tabletop-tracker/internal/board"
)

// notification states of the lifecycle loop
const (
	notifiedNothing = iota
	notifiedNotRecognized
	notifiedRecognized
)

type lifecycleState struct {
	notified       int
	lastRecognized time.Time
}

// Run drives the session until ctx is done: every poll interval it reads the
// camera, recognizes the board, publishes the snapshot, notifies board state
// changes, updates area stability and drops finished reporters. A failing
// cycle is logged and the next one runs as usual.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	st := &lifecycleState{lastRecognized: s.now()}

	s.logger.Info("Session", "lifecycle started", map[string]interface{}{
		"interval": s.opts.PollInterval.String(),
	})
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session", "lifecycle stopped", nil)
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx, st)
		}
	}
}

func (s *Session) cycle(ctx context.Context, st *lifecycleState) {
	defer func() {
		if p := recover(); p != nil {
			s.metrics.panics.Add(ctx, 1)
			s.logger.Error("Session", fmt.Errorf("panic: %v", p), map[string]interface{}{
				"message": "lifecycle cycle failed",
			})
		}
	}()

	frame, err := s.readFrame()
	if err != nil {
		return
	}
	defer frame.Close()

	if recognized, err := s.recognize(ctx, frame, st); err != nil {
		s.logger.Error("Session", err, map[string]interface{}{
			"message": "board recognition failed",
		})
	} else if recognized {
		s.updateStability()
	}

	s.pruneReporters()
}

// recognize runs one recognition cycle and sends board notifications.
func (s *Session) recognize(ctx context.Context, frame gocv.Mat, st *lifecycleState) (bool, error) {
	s.boardMu.Lock()
	if !s.initialized {
		s.boardMu.Unlock()
		return false, nil
	}
	snapshot, err := s.recognizer.FindBoard(frame, s.descriptor, false)
	if err != nil {
		s.boardMu.Unlock()
		return false, err
	}
	s.descriptor.SetSnapshot(snapshot)
	recognized := snapshot.Recognized()
	missing := snapshot.MissingCorners()
	s.boardMu.Unlock()

	s.metrics.recognition(ctx, snapshot.Status().String())

	now := s.now()
	if recognized {
		st.lastRecognized = now
		if st.notified != notifiedRecognized {
			st.notified = notifiedRecognized
			s.metrics.notification(ctx, "BOARD_RECOGNIZED")
			s.notify(BoardEvent{Recognized: true})
		}
		return true, nil
	}

	if st.notified != notifiedNotRecognized && now.Sub(st.lastRecognized) > s.opts.NotRecognizedNotifyDelay {
		st.notified = notifiedNotRecognized
		s.metrics.notification(ctx, "BOARD_NOT_RECOGNIZED")
		s.logger.Warning("Session", "board not recognized", map[string]interface{}{
			"missing": missing,
		})
		s.notify(BoardEvent{MissingCorners: missing})
		if s.DebugEnabled() {
			s.saveDebugFrame(frame)
		}
	}
	return false, nil
}

// saveDebugFrame keeps the frame the board was lost in.
func (s *Session) saveDebugFrame(frame gocv.Mat) {
	name := filepath.Join(s.opts.ScreenshotDir,
		fmt.Sprintf("lost_%s.png", s.now().Format("2006-01-02-150405")))
	if err := os.MkdirAll(s.opts.ScreenshotDir, 0o755); err != nil || !gocv.IMWrite(name, frame) {
		s.logger.Warning("Session", "could not write debug frame", map[string]interface{}{
			"file": name,
		})
	}
}

// Snapshot returns the current board snapshot; see board.Descriptor.
func (s *Session) Snapshot() *board.Snapshot {
	return s.currentDescriptor().Snapshot()
}
