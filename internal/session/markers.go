package session

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"tabletop-tracker/internal/marker"
)

// InitializeShapeMarker registers a shape marker built from a reference
// polygon, replacing any marker with the same id.
func (s *Session) InitializeShapeMarker(id int, shape []image.Point, opts marker.ShapeOptions) error {
	m, err := marker.NewShapeMarker(id, shape, opts)
	if err != nil {
		return err
	}
	s.setMarker(m)
	return nil
}

// InitializeShapeMarkerFromImage registers a shape marker whose reference
// polygon is taken from an encoded (PNG, JPEG) marker image.
func (s *Session) InitializeShapeMarkerFromImage(id int, encoded []byte, opts marker.ShapeOptions) error {
	img, err := gocv.IMDecode(encoded, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("decoding marker image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return fmt.Errorf("decoding marker image: empty result")
	}

	m, err := marker.NewShapeMarkerFromImage(id, img, opts)
	if err != nil {
		return err
	}
	s.setMarker(m)
	return nil
}

func (s *Session) setMarker(m marker.Marker) {
	s.markersMu.Lock()
	defer s.markersMu.Unlock()

	s.markers[m.ID()] = m
	s.logger.Debug("Session", "marker initialized", map[string]interface{}{
		"id": m.ID(),
	})
}

func (s *Session) RemoveMarker(id int) error {
	s.markersMu.Lock()
	defer s.markersMu.Unlock()

	if _, ok := s.markers[id]; !ok {
		return &UnknownIDError{Kind: kindMarker, ID: id}
	}
	delete(s.markers, id)
	return nil
}

func (s *Session) RemoveMarkers() {
	s.markersMu.Lock()
	defer s.markersMu.Unlock()
	clear(s.markers)
}

func (s *Session) marker(id int) (marker.Marker, error) {
	s.markersMu.Lock()
	defer s.markersMu.Unlock()

	m, ok := s.markers[id]
	if !ok {
		return nil, &UnknownIDError{Kind: kindMarker, ID: id}
	}
	return m, nil
}

func (s *Session) markerList(ids []int) ([]marker.Marker, error) {
	out := make([]marker.Marker, 0, len(ids))
	for _, id := range ids {
		m, err := s.marker(id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Session) countMarkers() int {
	s.markersMu.Lock()
	defer s.markersMu.Unlock()
	return len(s.markers)
}
