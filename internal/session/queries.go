package session

import (
	"errors"
	"image"

	"gocv.io/x/gocv"

	"tabletop-tracker/internal/board"
	"tabletop-tracker/internal/brick"
	"tabletop-tracker/internal/marker"
)

// BoardState describes a recognized board.
type BoardState struct {
	SnapshotID uint64         `json:"snapshotId"`
	Corners    [4]image.Point `json:"corners"`
	BoardSize  image.Point    `json:"boardSize"`
}

// FindBoardNow runs a full recognition on the latest frame, ignoring the
// known corners, and publishes the result.
func (s *Session) FindBoardNow() (BoardState, error) {
	frame, err := s.readFrame()
	if err != nil {
		return BoardState{}, err
	}
	defer frame.Close()

	s.boardMu.Lock()
	defer s.boardMu.Unlock()

	snapshot, err := s.recognizer.FindBoard(frame, s.descriptor, true)
	if err != nil {
		return BoardState{}, err
	}
	s.descriptor.SetSnapshot(snapshot)

	if !snapshot.Recognized() {
		return BoardState{}, &BoardNotRecognizedError{MissingCorners: snapshot.MissingCorners()}
	}
	return BoardState{
		SnapshotID: snapshot.ID(),
		Corners:    snapshot.Corners(),
		BoardSize:  s.descriptor.BoardSize(),
	}, nil
}

// FindBrickNow runs the brick detector once on a tiled area.
func (s *Session) FindBrickNow(areaID int, positions []image.Point) (brick.Result, error) {
	area, err := s.tiledArea(areaID)
	if err != nil {
		return brick.Result{}, err
	}
	result, err := s.detector.FindBrick(area, positions)
	if err != nil {
		return brick.Result{}, s.boardError(err)
	}
	return result, nil
}

// FindMarkersNow searches an area once for every marker of markerIDs.
// Markers that are not found are left out of the result.
func (s *Session) FindMarkersNow(areaID int, markerIDs []int) ([]marker.Result, error) {
	area, err := s.area(areaID)
	if err != nil {
		return nil, err
	}
	markers, err := s.markerList(markerIDs)
	if err != nil {
		return nil, err
	}

	results := []marker.Result{}
	for _, m := range markers {
		img, err := area.Image(m.PreferredTier())
		if err != nil {
			return nil, s.boardError(err)
		}

		var found *marker.Result
		err = img.WithMat(func(mat gocv.Mat) error {
			var err error
			found, err = m.FindInImage(mat)
			return err
		})
		img.Release()
		if err != nil {
			return nil, err
		}
		if found != nil {
			results = append(results, *found)
		}
	}
	return results, nil
}

// boardError turns board.ErrNotRecognized into a BoardNotRecognizedError
// carrying the missing corners of the current snapshot.
func (s *Session) boardError(err error) error {
	if !errors.Is(err, board.ErrNotRecognized) && !errors.Is(err, board.ErrSnapshotClosed) {
		return err
	}
	var missing []string
	if snapshot := s.currentDescriptor().Snapshot(); snapshot != nil {
		missing = snapshot.MissingCorners()
	}
	return &BoardNotRecognizedError{MissingCorners: missing}
}
