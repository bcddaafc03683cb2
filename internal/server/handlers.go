package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/golang/geo/r2"

	"tabletop-tracker/internal/board"
	"tabletop-tracker/internal/marker"
	"tabletop-tracker/internal/processing/contours"
	"tabletop-tracker/internal/reporter"
	"tabletop-tracker/internal/session"
)

// actionFunc handles one request. Reporter actions send their UPDATE
// messages to c later.
type actionFunc func(c *client, req Request) (string, interface{}, error)

func (srv *Server) routes() map[string]actionFunc {
	return map[string]actionFunc{
		"enableDebug":              srv.enableDebug,
		"reset":                    srv.reset,
		"resetReporters":           srv.resetReporters,
		"resetReporter":            srv.resetReporter,
		"takeScreenshot":           srv.takeScreenshot,
		"initializeBoard":          srv.initializeBoard,
		"initializeBoardArea":      srv.initializeBoardArea,
		"initializeTiledBoardArea": srv.initializeTiledBoardArea,
		"removeBoardArea":          srv.removeBoardArea,
		"removeBoardAreas":         srv.removeBoardAreas,
		"removeMarker":             srv.removeMarker,
		"removeMarkers":            srv.removeMarkers,
		"initializeShapeMarker":    srv.initializeShapeMarker,

		"reportBackWhenBrickFoundAtAnyOfPositions": srv.brickFoundAtAnyOfPositions,
		"reportBackWhenBrickMovedToAnyOfPositions": srv.brickMovedToAnyOfPositions,
		"reportBackWhenBrickMovedToPosition":       srv.brickMovedToPosition,
		"requestBrickPosition":                     srv.requestBrickPosition,
		"requestBrickPositions":                    srv.requestBrickPositions,
		"requestMarkers":                           srv.requestMarkers,
		"reportBackWhenMarkerFound":                srv.markerFound,
		"startTrackingMarker":                      srv.startTrackingMarker,
		"requestContours":                          srv.requestContours,

		"findBoard":   srv.findBoard,
		"findBrick":   srv.findBrick,
		"findMarkers": srv.findMarkers,
	}
}

// handle runs the action and builds the reply.
func (srv *Server) handle(c *client, req Request) Response {
	requestID := req.requestID()
	fn, ok := srv.actions[req.Action]
	if !ok {
		srv.logger.Warning("Server", "unknown action", map[string]interface{}{
			"action": req.Action,
		})
		return Response{
			Result:    ResultError,
			Action:    req.Action,
			Payload:   payload{"error": "unknown action " + req.Action},
			RequestID: requestID,
		}
	}

	result, body, err := srv.call(fn, c, req)
	if err != nil {
		result, body = errorResult(err)
		srv.logger.Debug("Server", "action failed", map[string]interface{}{
			"action": req.Action,
			"error":  err.Error(),
		})
	}
	if result == "" {
		result = ResultOK
	}
	if body == nil {
		body = payload{}
	}
	if r, ok := body.(startedPayload); ok {
		body, requestID = payload{"id": r.id}, randomRequestID()
	}
	return Response{Result: result, Action: req.Action, Payload: body, RequestID: requestID}
}

// call recovers a panicking action so one bad request cannot end the
// connection.
func (srv *Server) call(fn actionFunc, c *client, req Request) (result string, body interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("action %s panicked: %v", req.Action, p)
			srv.logger.Error("Server", err, map[string]interface{}{
				"message": "action panicked",
			})
		}
	}()
	return fn(c, req)
}

func errorResult(err error) (string, interface{}) {
	var (
		notRecognized *session.BoardNotRecognizedError
		unknown       *session.UnknownIDError
	)
	switch {
	case errors.Is(err, session.ErrCameraNotReady):
		return ResultCameraNotReady, payload{}
	case errors.As(err, &notRecognized):
		return ResultBoardNotRecognized, payload{"unrecognizedCorners": nonNil(notRecognized.MissingCorners)}
	case errors.As(err, &unknown):
		return ResultInvalidConfiguration, payload{"error": err.Error(), "kind": unknown.Kind, "id": unknown.ID}
	default:
		return ResultError, payload{"error": err.Error()}
	}
}

// startedPayload is returned by reporter actions. Its reply carries a fresh
// request id; the client's request id is kept for the UPDATE messages.
type startedPayload struct {
	id int
}

// update sends an UPDATE message for a reporter callback.
func (srv *Server) update(c *client, action string, requestID int, body payload) {
	srv.send(c, Response{Result: ResultUpdate, Action: action, Payload: body, RequestID: requestID})
}

func (srv *Server) enableDebug(*client, Request) (string, interface{}, error) {
	srv.session.EnableDebug()
	return ResultOK, nil, nil
}

func (srv *Server) reset(_ *client, req Request) (string, interface{}, error) {
	var p resetPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	resolution := session.DefaultResolution
	if len(p.Resolution) == 2 {
		resolution = image.Point{X: p.Resolution[0], Y: p.Resolution[1]}
	}
	return ResultOK, nil, srv.session.Reset(resolution)
}

func (srv *Server) resetReporters(*client, Request) (string, interface{}, error) {
	srv.session.StopAllReporters()
	return ResultOK, nil, nil
}

func (srv *Server) resetReporter(_ *client, req Request) (string, interface{}, error) {
	var p idPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	return ResultOK, nil, srv.session.StopReporter(p.ID)
}

func (srv *Server) takeScreenshot(_ *client, req Request) (string, interface{}, error) {
	var p screenshotPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	_, err := srv.session.TakeScreenshot(p.Filename)
	return ResultOK, nil, err
}

func (srv *Server) initializeBoard(_ *client, req Request) (string, interface{}, error) {
	var p boardPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	var border r2.Point
	if len(p.BorderPercentage) == 2 {
		border = r2.Point{X: p.BorderPercentage[0], Y: p.BorderPercentage[1]}
	}
	return ResultOK, nil, srv.session.InitializeBoard(border, p.CornerMarker)
}

func (srv *Server) initializeBoardArea(_ *client, req Request) (string, interface{}, error) {
	var p areaPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	id, err := srv.session.InitializeArea(p.ID, board.Rect{p.X1, p.Y1, p.X2, p.Y2})
	if err != nil {
		return "", nil, err
	}
	return ResultOK, payload{"id": id}, nil
}

func (srv *Server) initializeTiledBoardArea(_ *client, req Request) (string, interface{}, error) {
	var p areaPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	id, err := srv.session.InitializeTiledArea(p.ID, board.Rect{p.X1, p.Y1, p.X2, p.Y2},
		image.Point{X: p.TileCountX, Y: p.TileCountY})
	if err != nil {
		return "", nil, err
	}
	return ResultOK, payload{"id": id}, nil
}

func (srv *Server) removeBoardArea(_ *client, req Request) (string, interface{}, error) {
	var p idPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	return ResultOK, nil, srv.session.RemoveArea(p.ID)
}

func (srv *Server) removeBoardAreas(*client, Request) (string, interface{}, error) {
	srv.session.RemoveAreas()
	return ResultOK, nil, nil
}

func (srv *Server) removeMarker(_ *client, req Request) (string, interface{}, error) {
	var p idPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	return ResultOK, nil, srv.session.RemoveMarker(p.ID)
}

func (srv *Server) removeMarkers(*client, Request) (string, interface{}, error) {
	srv.session.RemoveMarkers()
	return ResultOK, nil, nil
}

func (srv *Server) initializeShapeMarker(_ *client, req Request) (string, interface{}, error) {
	var p shapeMarkerPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	opts := marker.DefaultShapeOptions()
	if p.MinArea != nil {
		opts.MinArea = *p.MinArea
	}
	if p.MaxArea != nil {
		opts.MaxArea = *p.MaxArea
	}

	var err error
	switch {
	case len(p.Shape) > 0:
		err = srv.session.InitializeShapeMarker(p.MarkerID, points(p.Shape), opts)
	case p.ImageBase64 != "":
		raw, decErr := base64.StdEncoding.DecodeString(p.ImageBase64)
		if decErr != nil {
			return "", nil, fmt.Errorf("invalid imageBase64: %w", decErr)
		}
		err = srv.session.InitializeShapeMarkerFromImage(p.MarkerID, raw, opts)
	default:
		err = errors.New("initializeShapeMarker needs shape or imageBase64")
	}
	if err != nil {
		return "", nil, err
	}
	return ResultOK, payload{"id": p.MarkerID}, nil
}

func (p reporterPayload) request(defaultStability float64) session.ReporterRequest {
	stability := defaultStability
	if p.StabilityLevel != nil {
		stability = *p.StabilityLevel
	}
	return session.ReporterRequest{ID: p.ID, AreaID: p.AreaID, Stability: stability}
}

func started(id int, err error) (string, interface{}, error) {
	if err != nil {
		return "", nil, err
	}
	return ResultOK, startedPayload{id: id}, nil
}

func (srv *Server) brickFoundAtAnyOfPositions(c *client, req Request) (string, interface{}, error) {
	var p brickPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	requestID := req.requestID()
	return started(srv.session.StartBrickAtAnyPosition(p.request(reporter.DefaultBrickStability), points(p.ValidPositions),
		func(id int, pos image.Point) {
			srv.update(c, "brickFoundAtPosition", requestID, payload{"id": id, "position": toPosition(pos)})
		}))
}

func (srv *Server) brickMovedToAnyOfPositions(c *client, req Request) (string, interface{}, error) {
	var p brickPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	requestID := req.requestID()
	return started(srv.session.StartBrickMovedToAnyOf(p.request(reporter.DefaultBrickStability), p.InitialPosition.point(), points(p.ValidPositions),
		func(id int, pos image.Point) {
			srv.update(c, "brickMovedToPosition", requestID, payload{
				"id":              id,
				"position":        toPosition(pos),
				"initialPosition": p.InitialPosition,
			})
		}))
}

func (srv *Server) brickMovedToPosition(c *client, req Request) (string, interface{}, error) {
	var p brickPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	requestID := req.requestID()
	return started(srv.session.StartBrickMovedTo(p.request(reporter.DefaultBrickStability), p.Position.point(), points(p.ValidPositions),
		func(id int, pos image.Point) {
			srv.update(c, "brickMovedToPosition", requestID, payload{"id": id, "position": toPosition(pos)})
		}))
}

func (srv *Server) requestBrickPosition(c *client, req Request) (string, interface{}, error) {
	var p brickPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	requestID := req.requestID()
	return started(srv.session.StartBrickAtAnyPosition(p.request(0), points(p.ValidPositions),
		func(id int, pos image.Point) {
			srv.update(c, "brickFound", requestID, payload{"id": id, "areaId": p.AreaID, "position": toPosition(pos)})
		}))
}

func (srv *Server) requestBrickPositions(c *client, req Request) (string, interface{}, error) {
	var p brickPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	requestID := req.requestID()
	return started(srv.session.StartBrickPositions(p.request(0), points(p.ValidPositions),
		func(id int, found []image.Point) {
			srv.update(c, "bricksFound", requestID, payload{"id": id, "areaId": p.AreaID, "positions": positions(found)})
		}))
}

func (srv *Server) requestMarkers(c *client, req Request) (string, interface{}, error) {
	var p markerPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	requestID := req.requestID()
	stableFor := time.Duration(p.StableForMs) * time.Millisecond
	return started(srv.session.StartFindMarkers(p.request(0), p.MarkerIDs, stableFor,
		func(id int, found []marker.Result) {
			srv.update(c, "markersFound", requestID, payload{"id": id, "areaId": p.AreaID, "markers": found})
		}))
}

func (srv *Server) markerFound(c *client, req Request) (string, interface{}, error) {
	var p markerPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	requestID := req.requestID()
	return started(srv.session.StartFindMarker(p.request(reporter.DefaultMarkerStability), p.MarkerID,
		func(id int, found marker.Result) {
			srv.update(c, "markerFound", requestID, payload{"id": id, "areaId": p.AreaID, "marker": found})
		}))
}

func (srv *Server) startTrackingMarker(c *client, req Request) (string, interface{}, error) {
	var p markerPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	requestID := req.requestID()
	return started(srv.session.StartTrackMarker(p.request(0), p.MarkerID,
		func(id int, found marker.Result) {
			srv.update(c, "markerTracked", requestID, payload{"id": id, "areaId": p.AreaID, "marker": found})
		}))
}

func (srv *Server) requestContours(c *client, req Request) (string, interface{}, error) {
	var p contoursPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	requestID := req.requestID()
	return started(srv.session.StartFindContours(p.request(0), p.Approximation, p.RemoveConvexHulls,
		func(id int, found []reporter.Contour, hierarchy []contours.Hierarchy) {
			srv.update(c, "contoursFound", requestID, payload{
				"id":        id,
				"areaId":    p.AreaID,
				"contours":  found,
				"hierarchy": hierarchy,
			})
		}))
}

func (srv *Server) findBoard(*client, Request) (string, interface{}, error) {
	state, err := srv.session.FindBoardNow()
	if err != nil {
		return "", nil, err
	}
	corners := make([]position, len(state.Corners))
	for i, c := range state.Corners {
		corners[i] = toPosition(c)
	}
	return ResultBoardRecognized, payload{"corners": corners, "snapshotId": state.SnapshotID}, nil
}

func (srv *Server) findBrick(_ *client, req Request) (string, interface{}, error) {
	var p findPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	result, err := srv.session.FindBrickNow(p.AreaID, points(p.ValidPositions))
	if err != nil {
		return "", nil, err
	}
	body := payload{"areaId": p.AreaID, "position": nil}
	if result.Found {
		body["position"] = toPosition(result.Position)
	}
	return ResultOK, body, nil
}

func (srv *Server) findMarkers(_ *client, req Request) (string, interface{}, error) {
	var p findPayload
	if err := decode(req.Payload, &p); err != nil {
		return "", nil, err
	}
	found, err := srv.session.FindMarkersNow(p.AreaID, p.MarkerIDs)
	if err != nil {
		return "", nil, err
	}
	return ResultOK, payload{"areaId": p.AreaID, "markers": found}, nil
}
