package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/bootstrap"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/config"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var publicDir string

	root := &cobra.Command{
		Use:   "studioctl",
		Short: "Generate and manage openjourney media from the command line",
		Long: `studioctl runs the same generation pipeline as the HTTP API and works on
the same generated-images and generated-videos directories.

Configuration comes from config.yaml and OPENJOURNEY_* variables, exactly as
for the server.

Examples:
  studioctl generate image "a lighthouse at dusk"
  studioctl generate image-to-video "make the waves move" --image beach.png
  studioctl list --type video --page 2
  studioctl delete generated_image_2025-01-09T08-08-31_cat.png --type image
  studioctl sweep --max-age 720h
  studioctl events tail`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&publicDir, "public-dir", "", "Override media.publicdir")

	// loadApp is shared by every subcommand.
	loadApp := func(cmd *cobra.Command) (*bootstrap.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if publicDir != "" {
			cfg.Media.PublicDir = publicDir
		}
		logger := log.NewWithWriter(cmd.ErrOrStderr(), cfg.Environment, cfg.Logging.Level)
		return bootstrap.New(cmd.Context(), cfg, logger)
	}

	root.AddCommand(
		newGenerateCmd(loadApp),
		newScanCmd(loadApp),
		newListCmd(loadApp),
		newDeleteCmd(loadApp),
		newSweepCmd(loadApp),
		newEventsCmd(loadApp),
	)
	return root
}

type appLoader func(cmd *cobra.Command) (*bootstrap.App, error)
