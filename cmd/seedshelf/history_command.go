package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past organization outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListResults(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No organization history recorded")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				outcome := "ok"
				if !record.Success {
					outcome = "failed: " + record.Error
				} else if record.Error != "" {
					outcome = record.Error
				}
				rows = append(rows, []string{
					record.CreatedAt.Local().Format(time.DateTime),
					record.FileName,
					record.Action,
					outcome,
					record.LibraryPath,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"When", "File", "Action", "Outcome", "Destination"}, rows))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of records to show")
	return cmd
}
