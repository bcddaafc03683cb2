package session

import (
	"fmt"
	"image"

	"tabletop-tracker/internal/board"
)

// InitializeArea registers a board area. A nil id picks a free random one.
// An existing area with the same id is replaced.
func (s *Session) InitializeArea(id *int, rect board.Rect) (int, error) {
	if err := rect.Validate(); err != nil {
		return 0, err
	}
	d := s.currentDescriptor()
	return s.addArea(id, func(id int) registeredArea {
		return board.NewArea(id, rect, d)
	})
}

// InitializeTiledArea registers a board area divided into tiles.
func (s *Session) InitializeTiledArea(id *int, rect board.Rect, tileCount image.Point) (int, error) {
	if err := rect.Validate(); err != nil {
		return 0, err
	}
	if tileCount.X <= 0 || tileCount.Y <= 0 {
		return 0, fmt.Errorf("tile count must be positive, got: %v", tileCount)
	}
	d := s.currentDescriptor()
	return s.addArea(id, func(id int) registeredArea {
		return board.NewTiledArea(id, rect, tileCount, d)
	})
}

func (s *Session) addArea(id *int, build func(int) registeredArea) (int, error) {
	s.areasMu.Lock()
	defer s.areasMu.Unlock()

	areaID := 0
	if id != nil {
		areaID = *id
	} else {
		areaID = randomID(func(i int) bool { _, ok := s.areas[i]; return ok })
	}

	if old, ok := s.areas[areaID]; ok {
		old.Close()
	}
	s.areas[areaID] = build(areaID)

	s.logger.Debug("Session", "area initialized", map[string]interface{}{
		"id": areaID,
	})
	return areaID, nil
}

func (s *Session) RemoveArea(id int) error {
	s.areasMu.Lock()
	defer s.areasMu.Unlock()

	a, ok := s.areas[id]
	if !ok {
		return &UnknownIDError{Kind: kindArea, ID: id}
	}
	a.Close()
	delete(s.areas, id)
	return nil
}

func (s *Session) RemoveAreas() {
	s.areasMu.Lock()
	defer s.areasMu.Unlock()

	for id, a := range s.areas {
		a.Close()
		delete(s.areas, id)
	}
}

func (s *Session) area(id int) (registeredArea, error) {
	s.areasMu.Lock()
	defer s.areasMu.Unlock()

	a, ok := s.areas[id]
	if !ok {
		return nil, &UnknownIDError{Kind: kindArea, ID: id}
	}
	return a, nil
}

func (s *Session) tiledArea(id int) (*board.TiledArea, error) {
	a, err := s.area(id)
	if err != nil {
		return nil, err
	}
	tiled, ok := a.(*board.TiledArea)
	if !ok {
		return nil, &UnknownIDError{Kind: kindTiledArea, ID: id}
	}
	return tiled, nil
}

func (s *Session) countAreas() int {
	s.areasMu.Lock()
	defer s.areasMu.Unlock()
	return len(s.areas)
}

// updateStability feeds the current snapshot into every area's motion model.
func (s *Session) updateStability() {
	s.areasMu.Lock()
	defer s.areasMu.Unlock()

	for id, a := range s.areas {
		if err := a.UpdateStabilityScore(); err != nil {
			s.logger.Debug("Session", "stability update skipped", map[string]interface{}{
				"area":  id,
				"error": err.Error(),
			})
		}
	}
}

func (s *Session) currentDescriptor() *board.Descriptor {
	s.boardMu.Lock()
	defer s.boardMu.Unlock()
	return s.descriptor
}
