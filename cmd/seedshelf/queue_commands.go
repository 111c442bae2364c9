package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"seedshelf/internal/conversion"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage recorded conversion tasks",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show conversion task counts and recent tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			counts, err := store.TaskCounts(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(counts) == 0 {
				fmt.Fprintln(out, "No conversion tasks recorded")
				return nil
			}

			rows := make([][]string, 0, len(counts))
			for _, status := range conversion.AllStatuses() {
				if count, ok := counts[status]; ok {
					rows = append(rows, []string{string(status), strconv.Itoa(count)})
				}
			}
			fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, 2))

			tasks, err := store.ListTasks(cmd.Context(), limit)
			if err != nil {
				return err
			}
			taskRows := make([][]string, 0, len(tasks))
			for _, task := range tasks {
				taskRows = append(taskRows, []string{
					task.ID,
					string(task.Status),
					strconv.Itoa(task.Progress) + "%",
					task.InputPath,
					task.Error,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Status", "Progress", "Input", "Error"}, taskRows, 3))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of recent tasks to show")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed and failed task records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.ClearTerminalTasks(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d task records\n", removed)
			return nil
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a pending task record left by an interrupted run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.CancelPendingTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled task %s\n", args[0])
			return nil
		},
	}
}
