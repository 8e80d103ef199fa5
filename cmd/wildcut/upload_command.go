package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"wildcut/internal/logging"
	"wildcut/internal/upload"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var title string
	var description string
	var tags []string

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a rendered video directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("stat upload file: %w", err)
			}

			logger, err := logging.NewWithWriter(cmd.ErrOrStderr(), logging.Options{
				Level:  cfg.Logging.Level,
				Format: "console",
			})
			if err != nil {
				return err
			}

			uploader, err := upload.NewUploader(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			if strings.TrimSpace(title) == "" {
				title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			out := cmd.OutOrStdout()
			var lastPercent float64
			result, err := uploader.Upload(cmd.Context(), path, upload.Metadata{
				Title:       title,
				Description: description,
				Tags:        tags,
			}, func(percent float64) {
				if percent-lastPercent >= 10 || percent >= 100 {
					lastPercent = percent
					fmt.Fprintf(out, "Uploading... %.0f%%\n", percent)
				}
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Uploaded: %s\n", result.URL)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Video title (defaults to the file name)")
	cmd.Flags().StringVar(&description, "description", "", "Video description")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Video tags (repeatable)")
	return cmd
}
