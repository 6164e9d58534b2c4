package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldsales/go-fieldsync/syncer"
)

func newSyncCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "sync [entity]",
		Short: "Refresh local data from the server",
		Long: `Refresh one entity, or every entity when none is given. Customers
refresh incrementally; pass --full to discard the incremental baseline and
pull everything, which also removes records deleted on the server.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flagDB, nil)
			if err != nil {
				return err
			}
			defer a.close()

			if len(args) == 1 {
				s, err := a.syncer(args[0])
				if err != nil {
					return err
				}
				if full {
					err = s.FullSync(ctx)
				} else {
					err = s.Sync(ctx)
				}
				if err != nil {
					return fmt.Errorf("%s: %s", s.EntityName(), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s synced\n", s.EntityName())
				return nil
			}

			if full {
				var failed int
				for _, name := range a.order {
					s := a.syncers[name]
					if err := s.FullSync(ctx); err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", name, err)
						failed++
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s ok\n", name)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d entities failed", failed, len(a.order))
				}
				return nil
			}

			dash := syncer.NewDashboard(a.logger, a.dashboardSyncers()...)
			failures := dash.SyncAll(ctx)
			for _, name := range a.order {
				if msg, ok := failures[name]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", name, msg)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s ok\n", name)
				}
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d of %d entities failed", len(failures), len(a.order))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "force a full sync")
	return cmd
}
