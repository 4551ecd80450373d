package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
	"github.com/JoynerLucas-arch/openjourney-joyner/internal/service"
)

func newGenerateCmd(loadApp appLoader) *cobra.Command {
	var input service.GenerateInput
	var imagePath string

	cmd := &cobra.Command{
		Use:   "generate <image|video|image-to-video> <prompt...>",
		Short: "Run one generation and save the result",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "image":
				input.Kind = models.TaskKindImage
			case "video":
				input.Kind = models.TaskKindVideo
			case "image-to-video", "i2v":
				input.Kind = models.TaskKindImageToVideo
				if imagePath == "" {
					return fmt.Errorf("image-to-video needs --image")
				}
				raw, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("read source image: %w", err)
				}
				input.Image = base64.StdEncoding.EncodeToString(raw)
			default:
				return fmt.Errorf("unknown kind %q", args[0])
			}
			input.Prompt = strings.Join(args[1:], " ")

			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			media, err := app.Generation.Generate(cmd.Context(), input)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !media.Saved {
				fmt.Fprintf(out, "not saved; vendor copy at %.120s\n", media.URL)
				return nil
			}
			fmt.Fprintf(out, "%s\ttask %s (%s, %d polls)\n", media.Filename, media.Task.TaskID, media.Task.Vendor, media.Task.Attempts)
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "Source frame for image-to-video")
	cmd.Flags().StringVar(&input.Vendor, "vendor", "", "volcengine, dashscope or ark")
	cmd.Flags().StringVar(&input.Model, "model", "", "Vendor model override")
	cmd.Flags().StringVar(&input.AccessKey, "access-key", "", "Volcengine access key")
	cmd.Flags().StringVar(&input.SecretKey, "secret-key", "", "Volcengine secret key")
	cmd.Flags().StringVar(&input.APIKey, "api-key", "", "DashScope or Ark API key")
	return cmd
}
