package cli

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tabletop-tracker/internal/camera"
	"tabletop-tracker/internal/config"
	"tabletop-tracker/internal/logger"
	"tabletop-tracker/internal/opencv/memory"
	"tabletop-tracker/internal/opencv/safe"
	"tabletop-tracker/internal/server"
	"tabletop-tracker/internal/session"
	"tabletop-tracker/internal/shutdown"
	"tabletop-tracker/internal/telemetry"
)

func newServeCmd(configDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker and its WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmd.Flags().String("address", "", "listen address (overrides server.address)")
	cmd.Flags().Int("device", 0, "camera device index (overrides camera.device)")
	cmd.Flags().String("log-level", "", "log level (overrides logLevel)")
	viper.BindPFlag("server.address", cmd.Flags().Lookup("address"))
	viper.BindPFlag("camera.device", cmd.Flags().Lookup("device"))
	viper.BindPFlag("logLevel", cmd.Flags().Lookup("log-level"))

	return cmd
}

// sessionOptions maps configuration onto the session.
func sessionOptions(cfg *config.Config, log logger.Logger) session.Options {
	return session.Options{
		BoardSize:                image.Point{X: cfg.Board.Width, Y: cfg.Board.Height},
		NotRecognizedNotifyDelay: cfg.Board.NotRecognizedNotifyDelay,
		PollInterval:             cfg.Lifecycle.PollInterval,
		ReporterInterval:         cfg.Reporter.PollInterval,
		ScreenshotDir:            cfg.Debug.ScreenshotDir,
		Brick:                    cfg.Brick,
		OpenCamera: func(resolution image.Point) (camera.Source, error) {
			device, err := camera.Open(camera.Config{
				Device:     cfg.Camera.Device,
				Resolution: resolution,
				Framerate:  cfg.Camera.Framerate,
			}, log)
			if err != nil {
				return nil, err
			}
			return device, nil
		},
	}
}

// newTelemetry installs the metrics provider, exporting to cfg.Metrics.File.
func newTelemetry(cfg *config.Config) (*telemetry.Provider, func() error, error) {
	if !cfg.Metrics.Enabled {
		p, err := telemetry.New(telemetry.Config{})
		return p, func() error { return nil }, err
	}

	f, err := os.OpenFile(cfg.Metrics.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening metrics file: %w", err)
	}
	p, err := telemetry.New(telemetry.Config{
		Enabled:        true,
		ServiceName:    AppName,
		ServiceVersion: AppVersion,
		Interval:       cfg.Metrics.Interval,
		Writer:         f,
	})
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return p, f.Close, nil
}

func serve(cfg *config.Config) error {
	log := newLogger(cfg)

	metrics, closeMetrics, err := newTelemetry(cfg)
	if err != nil {
		return err
	}

	tracker, err := memory.NewTracker(log)
	if err != nil {
		return err
	}
	safe.SetTracker(tracker)

	s, err := session.New(sessionOptions(cfg, log), log)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if err := s.Reset(image.Point{X: cfg.Camera.Width, Y: cfg.Camera.Height}); err != nil {
		log.Warning("Main", "camera not available, waiting for reset", map[string]interface{}{
			"error": err.Error(),
		})
	}

	srv, err := server.New(cfg.Server.Address, s, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	mgr := shutdown.NewManager(log)
	mgr.Register("metrics", shutdown.Func(func(ctx context.Context) error {
		err := metrics.Shutdown(ctx)
		if cerr := closeMetrics(); err == nil {
			err = cerr
		}
		return err
	}))
	mgr.Register("memory", shutdown.Func(func(context.Context) error {
		if n := tracker.LogLeaks(); n > 0 {
			log.Warning("Main", "image buffers still alive at exit", map[string]interface{}{
				"count": n,
			})
		}
		return nil
	}))
	mgr.Register("session", s)
	mgr.Register("server", srv)
	mgr.Listen()

	ctx := mgr.Context()
	go func() {
		if err := s.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("Main", err, map[string]interface{}{"message": "lifecycle ended"})
		}
	}()

	log.Info("Main", "tracker started", map[string]interface{}{
		"version": AppVersion,
		"address": cfg.Server.Address,
	})
	err = srv.ListenAndServe(ctx)
	mgr.Shutdown()
	return err
}
