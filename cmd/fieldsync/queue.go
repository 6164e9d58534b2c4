package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay the offline creation queue",
	}
	cmd.AddCommand(newQueueListCmd(), newQueueProcessCmd())
	return cmd
}

func newQueueListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued creations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flagDB, nil)
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.queue.Entries(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tENTITY\tSTATUS\tRETRIES\tCREATED\tLAST ERROR")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%s\t%s\n",
					e.ID, e.EntityType, e.Status, e.RetryCount, e.MaxRetries,
					e.CreatedAt.Format(time.RFC3339), e.LastError)
			}
			return w.Flush()
		},
	}
}

func newQueueProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Replay queued creations against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flagDB, nil)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.queue.ProcessQueue(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "succeeded %d, failed %d, skipped %d\n",
				res.SuccessCount, res.FailCount, res.SkippedCount)
			return nil
		},
	}
}
