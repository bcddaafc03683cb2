package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/golang/geo/r2"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"tabletop-tracker/internal/camera"
	"tabletop-tracker/internal/config"
	"tabletop-tracker/internal/processing/tier"
	"tabletop-tracker/internal/session"
)

// recognition is what recognize prints.
type recognition struct {
	Recognized     bool                `json:"recognized"`
	Board          *session.BoardState `json:"board,omitempty"`
	MissingCorners []string            `json:"missingCorners,omitempty"`
}

func newRecognizeCmd(configDir *string) *cobra.Command {
	var (
		out          string
		cornerMarker string
		border       []float64
	)

	cmd := &cobra.Command{
		Use:   "recognize <image>",
		Short: "Recognize the board in a still image",
		Long: `Run board recognition once on an image file and print the corners found
as JSON. With --out the perspective corrected board is written as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			if len(border) != 2 {
				return fmt.Errorf("--border needs two values, got %d", len(border))
			}

			still, err := camera.LoadStill(args[0])
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			opts := sessionOptions(cfg, log)
			opts.OpenCamera = func(image.Point) (camera.Source, error) { return still, nil }

			s, err := session.New(opts, log)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Reset(image.Point{}); err != nil {
				return err
			}
			if err := s.InitializeBoard(r2.Point{X: border[0], Y: border[1]}, cornerMarker); err != nil {
				return err
			}

			state, findErr := s.FindBoardNow()
			result := recognition{Recognized: findErr == nil}
			var notRecognized *session.BoardNotRecognizedError
			switch {
			case findErr == nil:
				result.Board = &state
			case errors.As(findErr, &notRecognized):
				result.MissingCorners = notRecognized.MissingCorners
			default:
				return findErr
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if findErr != nil {
				return findErr
			}
			if out != "" {
				return writeBoard(s, out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the corrected board image to this file")
	cmd.Flags().StringVar(&cornerMarker, "corner-marker", "DEFAULT", "corner marker (DEFAULT|TRIANGLE)")
	cmd.Flags().Float64SliceVar(&border, "border", []float64{0, 0}, "border fraction cut from the board as x,y")
	return cmd
}

func writeBoard(s *session.Session, path string) error {
	snapshot := s.Snapshot()
	if snapshot == nil {
		return errors.New("no board snapshot")
	}
	img, err := snapshot.BoardImage(tier.Original)
	if err != nil {
		return err
	}
	defer img.Release()

	return img.WithMat(func(m gocv.Mat) error {
		if !gocv.IMWrite(path, m) {
			return fmt.Errorf("writing %s failed", path)
		}
		return nil
	})
}
