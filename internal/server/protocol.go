package server

import (
	"fmt"
	"image"
	"math/rand"

	"github.com/mitchellh/mapstructure"
)

// Result codes of a response.
const (
	ResultOK                   = "OK"
	ResultUpdate               = "UPDATE"
	ResultBoardRecognized      = "BOARD_RECOGNIZED"
	ResultBoardNotRecognized   = "BOARD_NOT_RECOGNIZED"
	ResultCameraNotReady       = "CAMERA_NOT_READY"
	ResultInvalidConfiguration = "INVALID_CONFIGURATION"
	ResultError                = "ERROR"
)

// actionRecognizeBoard is the action board notifications are sent under.
const actionRecognizeBoard = "recognizeBoard"

// Request is one client message. The request id is normally inside the
// payload; a top level requestId is accepted too.
type Request struct {
	Action    string                 `json:"action"`
	Payload   map[string]interface{} `json:"payload"`
	RequestID *int                   `json:"requestId,omitempty"`
}

type Response struct {
	Result    string      `json:"result"`
	Action    string      `json:"action"`
	Payload   interface{} `json:"payload"`
	RequestID int         `json:"requestId"`
}

type payload map[string]interface{}

// requestID returns the id the client sent, or a random one.
func (r Request) requestID() int {
	if v, ok := r.Payload["requestId"]; ok {
		var id int
		if err := decode(v, &id); err == nil {
			return id
		}
	}
	if r.RequestID != nil {
		return *r.RequestID
	}
	return randomRequestID()
}

func randomRequestID() int {
	return rand.Intn(100001)
}

// decode copies a JSON-decoded value into out, converting numbers as
// needed.
func decode(in interface{}, out interface{}) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := d.Decode(in); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// position is a tile coordinate as sent on the wire: [x, y].
type position [2]int

func (p position) point() image.Point { return image.Point{X: p[0], Y: p[1]} }

func toPosition(p image.Point) position { return position{p.X, p.Y} }

func points(ps []position) []image.Point {
	out := make([]image.Point, len(ps))
	for i, p := range ps {
		out[i] = p.point()
	}
	return out
}

func positions(ps []image.Point) []position {
	out := make([]position, len(ps))
	for i, p := range ps {
		out[i] = toPosition(p)
	}
	return out
}

type idPayload struct {
	ID int `mapstructure:"id"`
}

type resetPayload struct {
	Resolution []int `mapstructure:"resolution"`
}

type screenshotPayload struct {
	Filename string `mapstructure:"filename"`
}

type boardPayload struct {
	BorderPercentage []float64 `mapstructure:"borderPercentage"`
	CornerMarker     string    `mapstructure:"cornerMarker"`
}

type areaPayload struct {
	ID         *int    `mapstructure:"id"`
	X1         float64 `mapstructure:"x1"`
	Y1         float64 `mapstructure:"y1"`
	X2         float64 `mapstructure:"x2"`
	Y2         float64 `mapstructure:"y2"`
	TileCountX int     `mapstructure:"tileCountX"`
	TileCountY int     `mapstructure:"tileCountY"`
}

// reporterPayload holds the fields every reporter action shares.
type reporterPayload struct {
	ID             *int     `mapstructure:"id"`
	AreaID         int      `mapstructure:"areaId"`
	StabilityLevel *float64 `mapstructure:"stabilityLevel"`
}

type brickPayload struct {
	reporterPayload `mapstructure:",squash"`
	ValidPositions  []position `mapstructure:"validPositions"`
	InitialPosition position   `mapstructure:"initialPosition"`
	Position        position   `mapstructure:"position"`
}

type shapeMarkerPayload struct {
	MarkerID    int        `mapstructure:"markerId"`
	Shape       []position `mapstructure:"shape"`
	ImageBase64 string     `mapstructure:"imageBase64"`
	MinArea     *float64   `mapstructure:"minArea"`
	MaxArea     *float64   `mapstructure:"maxArea"`
}

type markerPayload struct {
	reporterPayload `mapstructure:",squash"`
	MarkerID        int   `mapstructure:"markerId"`
	MarkerIDs       []int `mapstructure:"markerIds"`
	// StableForMs makes requestMarkers wait until the number of found
	// markers has not changed for this many milliseconds.
	StableForMs int `mapstructure:"stableForMs"`
}

type contoursPayload struct {
	reporterPayload   `mapstructure:",squash"`
	Approximation     float64 `mapstructure:"approximation"`
	RemoveConvexHulls bool    `mapstructure:"removeConvexHulls"`
}

type findPayload struct {
	AreaID         int        `mapstructure:"areaId"`
	ValidPositions []position `mapstructure:"validPositions"`
	MarkerIDs      []int      `mapstructure:"markerIds"`
}
