package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/service"
)

func printFiles(out io.Writer, files []models.MediaFile, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(files)
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tTIMESTAMP\tSIZE\tFILENAME")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.Type, f.Timestamp.Format(time.RFC3339), f.SizeBytes, f.Filename)
	}
	return w.Flush()
}

func newScanCmd(loadApp appLoader) *cobra.Command {
	var typeFlag string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List every generated file, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mediaType, err := service.ParseType(typeFlag, true)
			if err != nil {
				return err
			}
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			files, err := app.Media.Scan(cmd.Context(), mediaType)
			if err != nil {
				return err
			}
			return printFiles(cmd.OutOrStdout(), files, jsonFlag)
		},
	}
	cmd.Flags().StringVarP(&typeFlag, "type", "t", "", "Restrict to image or video")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of a table")
	return cmd
}

func newListCmd(loadApp appLoader) *cobra.Command {
	var typeFlag string
	var page, limit int
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one page of generated files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mediaType, err := service.ParseType(typeFlag, true)
			if err != nil {
				return err
			}
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Media.List(cmd.Context(), mediaType, page, limit)
			if err != nil {
				return err
			}
			if err := printFiles(cmd.OutOrStdout(), result.Data, jsonFlag); err != nil {
				return err
			}
			if !jsonFlag {
				fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d files)\n", result.Page, result.TotalPages, result.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&typeFlag, "type", "t", "", "Restrict to image or video")
	cmd.Flags().IntVar(&page, "page", 1, "Page number, from 1")
	cmd.Flags().IntVar(&limit, "limit", 20, "Files per page")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of a table")
	return cmd
}

func newDeleteCmd(loadApp appLoader) *cobra.Command {
	var typeFlag string
	var exact bool

	cmd := &cobra.Command{
		Use:   "delete <id-or-filename>",
		Short: "Delete a generated file",
		Long: `Delete a generated file. Without --exact the argument may omit its extension
or carry the img-/vid- id prefix, as the media/delete endpoint accepts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mediaType, err := service.ParseType(typeFlag, false)
			if err != nil {
				return err
			}
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if exact {
				if err := app.Media.DeleteExact(cmd.Context(), args[0], mediaType); err != nil {
					return err
				}
			} else {
				deleted, err := app.Media.Delete(cmd.Context(), args[0], mediaType)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("%s: file not found", args[0])
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&typeFlag, "type", "t", "", "image or video (required)")
	cmd.Flags().BoolVar(&exact, "exact", false, "Match the filename exactly")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newSweepCmd(loadApp appLoader) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete generated files older than --max-age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if maxAge <= 0 {
				maxAge = app.Config.Retention.MaxAge
			}
			if maxAge <= 0 {
				return fmt.Errorf("no max age: pass --max-age or set retention.maxage")
			}

			removed, err := app.Media.Sweep(cmd.Context(), maxAge)
			for _, f := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s/%s\n", f.Type, f.Filename)
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Age limit; defaults to retention.maxage")
	return cmd
}
