package reporter

import (
	"time"

	"gocv.io/x/gocv"

	"tabletop-tracker/internal/marker"
	"tabletop-tracker/internal/processing/tier"
)

// FindMarker calls back with the first result of its marker, then finishes.
type FindMarker struct {
	base
	area     Area
	marker   marker.Marker
	callback func(marker.Result)
}

// DefaultMarkerStability is the stability FindMarker waits for by default.
const DefaultMarkerStability = 0.98

func NewFindMarker(id int, area Area, m marker.Marker, stability float64, callback func(marker.Result)) *FindMarker {
	return &FindMarker{
		base:     base{id: id, kind: KindFindMarker, stability: stability},
		area:     area,
		marker:   m,
		callback: callback,
	}
}

func (r *FindMarker) Poll() (Outcome, error) {
	if r.finished {
		return Done, nil
	}
	result, err := findMarker(&r.base, r.area, r.marker)
	if err != nil || result == nil {
		return Continue, err
	}
	r.callback(*result)
	return r.finish()
}

// TrackMarker calls back every time its marker is found and never finishes.
type TrackMarker struct {
	base
	area     Area
	marker   marker.Marker
	callback func(marker.Result)
}

func NewTrackMarker(id int, area Area, m marker.Marker, callback func(marker.Result)) *TrackMarker {
	return &TrackMarker{
		base:     base{id: id, kind: KindTrackMarker},
		area:     area,
		marker:   m,
		callback: callback,
	}
}

func (r *TrackMarker) Poll() (Outcome, error) {
	result, err := findMarker(&r.base, r.area, r.marker)
	if err != nil || result == nil {
		return Continue, err
	}
	r.callback(*result)
	return Continue, nil
}

// FindMarkers searches for several markers at once and calls back with every
// result found. With StableFor set it waits until the number of found
// markers has not changed for that long.
type FindMarkers struct {
	base
	area      Area
	markers   []marker.Marker
	stableFor time.Duration
	callback  func([]marker.Result)

	now       func() time.Time
	lastCount int
	since     time.Time
}

func NewFindMarkers(id int, area Area, markers []marker.Marker, stability float64, stableFor time.Duration, callback func([]marker.Result)) *FindMarkers {
	return &FindMarkers{
		base:      base{id: id, kind: KindFindMarkers, stability: stability},
		area:      area,
		markers:   markers,
		stableFor: stableFor,
		callback:  callback,
		now:       time.Now,
		lastCount: -1,
	}
}

func (r *FindMarkers) Poll() (Outcome, error) {
	if r.finished {
		return Done, nil
	}

	results := []marker.Result{}
	for _, m := range r.markers {
		result, err := findMarker(&r.base, r.area, m)
		if err != nil {
			return Continue, err
		}
		if result != nil {
			results = append(results, *result)
		}
	}

	// an unstable or unrecognized board reads as zero markers, which is not
	// a count to settle on
	if len(results) == 0 && !r.ready() {
		return Continue, nil
	}

	if r.stableFor > 0 {
		now := r.now()
		if len(results) != r.lastCount {
			r.lastCount, r.since = len(results), now
		}
		if now.Sub(r.since) < r.stableFor {
			return Continue, nil
		}
	}

	r.callback(results)
	return r.finish()
}

func (r *FindMarkers) ready() bool {
	img, ok, _ := r.acquire(r.area, r.preferredTier(), false)
	if img != nil {
		img.Release()
	}
	return ok
}

func (r *FindMarkers) preferredTier() tier.Tier {
	if len(r.markers) == 0 {
		return tier.Medium
	}
	return r.markers[0].PreferredTier()
}

func findMarker(b *base, area Area, m marker.Marker) (*marker.Result, error) {
	img, ok, err := b.acquire(area, m.PreferredTier(), false)
	if !ok {
		return nil, err
	}
	defer img.Release()

	var result *marker.Result
	err = img.WithMat(func(mat gocv.Mat) error {
		var err error
		result, err = m.FindInImage(mat)
		return err
	})
	return result, err
}
