package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List rendered artifacts in the output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := ctx.client().Files(cmd.Context())
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No output files")
				return nil
			}

			rows := make([][]string, 0, len(files))
			for _, file := range files {
				modified := file.Modified
				if at, err := time.Parse(time.RFC3339, file.Modified); err == nil {
					modified = humanize.Time(at)
				}
				rows = append(rows, []string{
					file.Name,
					humanize.IBytes(uint64(file.Size)),
					modified,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "Size", "Modified"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}
