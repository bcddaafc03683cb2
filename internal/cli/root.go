// Package cli holds the tabletop-tracker commands.
package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"tabletop-tracker/internal/config"
	"tabletop-tracker/internal/logger"
)

const (
	AppName    = "tabletop-tracker"
	AppVersion = "1.0.0"
)

// NewRootCmd creates the root Cobra command.
func NewRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: "Tracks a physical game board through a camera",
		Long: `tabletop-tracker recognizes a game board in camera frames, finds bricks,
markers and contours on it and reports them to clients over WebSocket.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory holding "+config.FileName)

	rootCmd.AddCommand(newServeCmd(&configDir))
	rootCmd.AddCommand(newRecognizeCmd(&configDir))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %s/%s)\n",
				AppName, AppVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

// newLogger builds the logger cfg asks for.
func newLogger(cfg *config.Config) logger.Logger {
	level := logger.ParseLevel(cfg.LogLevel)
	if cfg.LogFormat == "json" {
		return logger.NewFileLogger(os.Stdout, level)
	}
	return logger.NewConsoleLogger(level)
}
