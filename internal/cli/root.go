// Package cli implements the facegate command line
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/FaceGate/internal/config"
	"github.com/MrCodeEU/FaceGate/pkg/logging"
)

// Version is the application version
const Version = "0.3.0"

var (
	configPath string
	verbose    bool

	// cfg and logger are set up before every subcommand runs
	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "facegate",
	Short:         "Camera-driven door access controller",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

func setup() error {
	loaded, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v, using defaults\n", err)
		loaded = config.DefaultConfig()
	}
	cfg = loaded

	logger, err = logging.New(cfg.Logging, verbose)
	if err != nil {
		return err
	}
	return nil
}

// Execute runs the root command
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
