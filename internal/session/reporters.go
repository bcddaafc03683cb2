package session

import (
	"image"
	"time"

	"tabletop-tracker/internal/marker"
	"tabletop-tracker/internal/processing/contours"
	"tabletop-tracker/internal/reporter"
)

// ReporterRequest holds what every reporter start shares.
type ReporterRequest struct {
	// ID is the reporter id; nil picks a free random one.
	ID     *int
	AreaID int
	// Stability is the minimum area stability score before detecting.
	Stability float64
}

// StartBrickAtAnyPosition reports the first brick found on any of positions.
func (s *Session) StartBrickAtAnyPosition(req ReporterRequest, positions []image.Point, callback func(int, image.Point)) (int, error) {
	area, err := s.tiledArea(req.AreaID)
	if err != nil {
		return 0, err
	}
	return s.startReporter(req.ID, func(id int) reporter.Reporter {
		return reporter.NewBrickAtAnyPosition(id, area, s.detector, positions, req.Stability,
			func(p image.Point) { callback(id, p) })
	})
}

// StartBrickMovedToAnyOf reports a brick found on any position but initial.
func (s *Session) StartBrickMovedToAnyOf(req ReporterRequest, initial image.Point, positions []image.Point, callback func(int, image.Point)) (int, error) {
	area, err := s.tiledArea(req.AreaID)
	if err != nil {
		return 0, err
	}
	return s.startReporter(req.ID, func(id int) reporter.Reporter {
		return reporter.NewBrickMovedToAnyOf(id, area, s.detector, initial, positions, req.Stability,
			func(p image.Point) { callback(id, p) })
	})
}

// StartBrickMovedTo reports a brick found exactly on target.
func (s *Session) StartBrickMovedTo(req ReporterRequest, target image.Point, positions []image.Point, callback func(int, image.Point)) (int, error) {
	area, err := s.tiledArea(req.AreaID)
	if err != nil {
		return 0, err
	}
	return s.startReporter(req.ID, func(id int) reporter.Reporter {
		return reporter.NewBrickMovedTo(id, area, s.detector, target, positions, req.Stability,
			func(p image.Point) { callback(id, p) })
	})
}

// StartBrickPositions reports every position holding a brick, once.
func (s *Session) StartBrickPositions(req ReporterRequest, positions []image.Point, callback func(int, []image.Point)) (int, error) {
	area, err := s.tiledArea(req.AreaID)
	if err != nil {
		return 0, err
	}
	return s.startReporter(req.ID, func(id int) reporter.Reporter {
		return reporter.NewBrickPositions(id, area, s.detector, positions, req.Stability,
			func(p []image.Point) { callback(id, p) })
	})
}

// StartFindMarker reports the first time markerID is found.
func (s *Session) StartFindMarker(req ReporterRequest, markerID int, callback func(int, marker.Result)) (int, error) {
	area, err := s.area(req.AreaID)
	if err != nil {
		return 0, err
	}
	m, err := s.marker(markerID)
	if err != nil {
		return 0, err
	}
	return s.startReporter(req.ID, func(id int) reporter.Reporter {
		return reporter.NewFindMarker(id, area, m, req.Stability,
			func(r marker.Result) { callback(id, r) })
	})
}

// StartFindMarkers reports every marker of markerIDs found in one image.
// With stableFor set the number of found markers must hold that long.
func (s *Session) StartFindMarkers(req ReporterRequest, markerIDs []int, stableFor time.Duration, callback func(int, []marker.Result)) (int, error) {
	area, err := s.area(req.AreaID)
	if err != nil {
		return 0, err
	}
	markers, err := s.markerList(markerIDs)
	if err != nil {
		return 0, err
	}
	return s.startReporter(req.ID, func(id int) reporter.Reporter {
		return reporter.NewFindMarkers(id, area, markers, req.Stability, stableFor,
			func(r []marker.Result) { callback(id, r) })
	})
}

// StartTrackMarker reports markerID every time it is found until stopped.
func (s *Session) StartTrackMarker(req ReporterRequest, markerID int, callback func(int, marker.Result)) (int, error) {
	area, err := s.area(req.AreaID)
	if err != nil {
		return 0, err
	}
	m, err := s.marker(markerID)
	if err != nil {
		return 0, err
	}
	return s.startReporter(req.ID, func(id int) reporter.Reporter {
		return reporter.NewTrackMarker(id, area, m,
			func(r marker.Result) { callback(id, r) })
	})
}

// StartFindContours reports the contours of the area once.
func (s *Session) StartFindContours(req ReporterRequest, approximation float64, removeConvexHulls bool, callback func(int, []reporter.Contour, []contours.Hierarchy)) (int, error) {
	area, err := s.area(req.AreaID)
	if err != nil {
		return 0, err
	}
	return s.startReporter(req.ID, func(id int) reporter.Reporter {
		return reporter.NewFindContours(id, area, approximation, removeConvexHulls, req.Stability,
			func(c []reporter.Contour, h []contours.Hierarchy) { callback(id, c, h) })
	})
}

// startReporter registers and starts the reporter build returns. A running
// reporter with the same id is stopped first.
func (s *Session) startReporter(id *int, build func(int) reporter.Reporter) (int, error) {
	s.reportersMu.Lock()
	defer s.reportersMu.Unlock()

	reporterID := 0
	if id != nil {
		reporterID = *id
	} else {
		reporterID = randomID(func(i int) bool { _, ok := s.reporters[i]; return ok })
	}

	if old, ok := s.reporters[reporterID]; ok {
		old.Stop()
	}
	s.reporters[reporterID] = reporter.Start(build(reporterID), s.opts.ReporterInterval, s.logger, s.runners)
	return reporterID, nil
}

// StopReporter asks the reporter to stop. It is removed from the registry by
// the lifecycle loop.
func (s *Session) StopReporter(id int) error {
	s.reportersMu.Lock()
	defer s.reportersMu.Unlock()

	r, ok := s.reporters[id]
	if !ok {
		return &UnknownIDError{Kind: kindReporter, ID: id}
	}
	r.Stop()
	return nil
}

// StopAllReporters stops every reporter and waits for their goroutines.
func (s *Session) StopAllReporters() {
	s.reportersMu.Lock()
	runners := make([]*reporter.Runner, 0, len(s.reporters))
	for id, r := range s.reporters {
		r.Stop()
		runners = append(runners, r)
		delete(s.reporters, id)
	}
	s.reportersMu.Unlock()

	for _, r := range runners {
		r.Wait()
	}
}

// pruneReporters drops reporters that finished or were stopped.
func (s *Session) pruneReporters() {
	s.reportersMu.Lock()
	defer s.reportersMu.Unlock()

	for id, r := range s.reporters {
		if r.Stopped() {
			delete(s.reporters, id)
		}
	}
}

// ReporterIDs lists the registered reporters.
func (s *Session) ReporterIDs() []int {
	s.reportersMu.Lock()
	defer s.reportersMu.Unlock()

	ids := make([]int, 0, len(s.reporters))
	for id := range s.reporters {
		ids = append(ids, id)
	}
	return ids
}

func (s *Session) countReporters() int {
	s.reportersMu.Lock()
	defer s.reportersMu.Unlock()
	return len(s.reporters)
}
