package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/events"
)

func newEventsCmd(loadApp appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the media event stream",
	}

	var from string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print media events as they are published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			if app.Redis == nil {
				return fmt.Errorf("redis.addr is not configured")
			}

			out := cmd.OutOrStdout()
			reader := events.NewReader(app.Redis, app.Config.Redis.Stream, app.Log)
			err = reader.Tail(cmd.Context(), from, func(_ context.Context, e events.Event) error {
				_, err := fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", e.At.Format(time.RFC3339), e.Action, e.Type, e.Filename)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	tail.Flags().StringVar(&from, "from", "$", `Start after this entry id; "0" replays the stream`)

	cmd.AddCommand(tail)
	return cmd
}
