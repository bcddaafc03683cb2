package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCameraNotReady means no frame is available yet. Callers retry later.
var ErrCameraNotReady = errors.New("camera not ready")

// BoardNotRecognizedError is returned by queries that need a recognized
// board. MissingCorners is empty when all corners were found but their
// combination was rejected.
type BoardNotRecognizedError struct {
	MissingCorners []string
}

func (e *BoardNotRecognizedError) Error() string {
	if len(e.MissingCorners) == 0 {
		return "board not recognized"
	}
	return "board not recognized: missing " + strings.Join(e.MissingCorners, ", ")
}

// UnknownIDError references an area, marker or reporter that does not exist
// or has the wrong kind.
type UnknownIDError struct {
	Kind string
	ID   int
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("unknown %s id: %d", e.Kind, e.ID)
}

const (
	kindArea      = "area"
	kindTiledArea = "tiled area"
	kindMarker    = "marker"
	kindReporter  = "reporter"
)
