// Package brick decides which tiles of a tiled area are covered by a brick.
package brick

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"

	"tabletop-tracker/internal/board"
	"tabletop-tracker/internal/logger"
	"tabletop-tracker/internal/processing/filters"
	"tabletop-tracker/internal/processing/histogram"
	"tabletop-tracker/internal/processing/threshold"
)

// fraction of every tile side ignored when measuring brightness
const medianTrim = 0.1

type Config struct {
	// MinMedianDelta is the brightness gap required between the darkest and
	// the second darkest tile.
	MinMedianDelta      float64 `mapstructure:"minMedianDelta"`
	MinProbability      float64 `mapstructure:"minProbability"`
	// MaxDeviation bounds runnerUp/best black fraction. Ignored when
	// MinProbabilityDelta is set.
	MaxDeviation        float64 `mapstructure:"maxDeviation"`
	MinProbabilityDelta float64 `mapstructure:"minProbabilityDelta"`
}

func DefaultConfig() Config {
	return Config{
		MinMedianDelta: 40,
		MinProbability: 0.25,
		MaxDeviation:   0.6,
	}
}

func (c Config) Validate() error {
	if c.MinMedianDelta < 0 || c.MinMedianDelta > 255 {
		return fmt.Errorf("minMedianDelta must be between 0 and 255, got: %f", c.MinMedianDelta)
	}
	if c.MinProbability < 0 || c.MinProbability > 1 {
		return fmt.Errorf("minProbability must be between 0 and 1, got: %f", c.MinProbability)
	}
	if c.MaxDeviation <= 0 || c.MaxDeviation > 1 {
		return fmt.Errorf("maxDeviation must be in (0, 1], got: %f", c.MaxDeviation)
	}
	if c.MinProbabilityDelta < 0 || c.MinProbabilityDelta > 1 {
		return fmt.Errorf("minProbabilityDelta must be between 0 and 1, got: %f", c.MinProbabilityDelta)
	}
	return nil
}

// StripSource builds tile strips; implemented by *board.TiledArea.
type StripSource interface {
	ID() int
	TileStrip(coordinates []image.Point, gray bool) (*board.TileStrip, error)
}

// Tile is the per-tile measurement behind a decision.
type Tile struct {
	Position    image.Point `json:"position"`
	Median      float64     `json:"median"`
	Probability float64     `json:"probability"`
	Detected    bool        `json:"detected"`
}

// Result of FindBrick. Tiles is filled even when no brick is found.
type Result struct {
	Found    bool
	Position image.Point
	Tiles    []Tile
}

type Detector struct {
	config Config
	logger logger.Logger
}

func NewDetector(config Config, log logger.Logger) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid brick detector config: %w", err)
	}
	return &Detector{config: config, logger: log}, nil
}

func (d *Detector) Config() Config { return d.config }

// FindBrick returns the single tile among coordinates holding a brick.
//
// The darkest tile must be clearly darker than every other one, and after one
// Otsu binarization of the whole strip it must also have the largest black
// fraction by a clear margin.
func (d *Detector) FindBrick(src StripSource, coordinates []image.Point) (Result, error) {
	strip, err := src.TileStrip(coordinates, true)
	if err != nil {
		return Result{}, err
	}
	defer strip.Close()

	tiles := make([]Tile, len(coordinates))
	for i, c := range coordinates {
		tiles[i] = Tile{Position: c, Median: trimmedLevel(strip, i)}
	}

	if len(tiles) > 1 {
		medians := make([]float64, len(tiles))
		for i, t := range tiles {
			medians[i] = t.Median
		}
		sort.Float64s(medians)
		if medians[1]-medians[0] < d.config.MinMedianDelta {
			d.logger.Debug("BrickDetector", "tile brightness too uniform", map[string]interface{}{
				"area":    src.ID(),
				"darkest": medians[0],
				"next":    medians[1],
			})
			return Result{Tiles: tiles}, nil
		}
	}

	d.blackFractions(strip, tiles)

	best, runnerUp := -1, -1
	for i, t := range tiles {
		switch {
		case best < 0 || t.Probability > tiles[best].Probability:
			best, runnerUp = i, best
		case runnerUp < 0 || t.Probability > tiles[runnerUp].Probability:
			runnerUp = i
		}
	}

	top := tiles[best].Probability
	second := 0.0
	if runnerUp >= 0 {
		second = tiles[runnerUp].Probability
	}

	if top < d.config.MinProbability {
		return Result{Tiles: tiles}, nil
	}
	if d.config.MinProbabilityDelta > 0 {
		if top-second < d.config.MinProbabilityDelta {
			return Result{Tiles: tiles}, nil
		}
	} else if second/top >= d.config.MaxDeviation {
		return Result{Tiles: tiles}, nil
	}

	tiles[best].Detected = true
	d.logger.Debug("BrickDetector", "brick found", map[string]interface{}{
		"area":        src.ID(),
		"position":    fmt.Sprint(tiles[best].Position),
		"probability": top,
		"runnerUp":    second,
	})
	return Result{Found: true, Position: tiles[best].Position, Tiles: tiles}, nil
}

// FindBricks reports every tile whose black fraction reaches MinProbability.
func (d *Detector) FindBricks(src StripSource, coordinates []image.Point) ([]Tile, error) {
	strip, err := src.TileStrip(coordinates, true)
	if err != nil {
		return nil, err
	}
	defer strip.Close()

	tiles := make([]Tile, len(coordinates))
	for i, c := range coordinates {
		tiles[i] = Tile{Position: c, Median: trimmedLevel(strip, i)}
	}
	d.blackFractions(strip, tiles)

	for i := range tiles {
		tiles[i].Detected = tiles[i].Probability >= d.config.MinProbability
	}
	return tiles, nil
}

// Positions lists the detected tiles.
func Positions(tiles []Tile) []image.Point {
	out := []image.Point{}
	for _, t := range tiles {
		if t.Detected {
			out = append(out, t.Position)
		}
	}
	return out
}

func trimmedLevel(strip *board.TileStrip, i int) float64 {
	tile := strip.Tile(i)
	defer tile.Close()
	trimmed := filters.Trim(tile, medianTrim)
	defer trimmed.Close()
	return histogram.ImageLevel(trimmed)
}

func (d *Detector) blackFractions(strip *board.TileStrip, tiles []Tile) {
	binary := threshold.OtsuBinary(strip.Image)
	defer binary.Close()

	pixels := strip.TilePixels()
	for i := range tiles {
		tiles[i].Probability = blackFraction(strip, binary, i, pixels)
	}
}

func blackFraction(strip *board.TileStrip, binary gocv.Mat, i int, pixels float64) float64 {
	if pixels <= 0 {
		return 0
	}
	view := strip.TileFromStrip(binary, i)
	defer view.Close()
	return min(histogram.Compute(view, 2)[0]/pixels, 1)
}
