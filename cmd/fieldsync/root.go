package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagDB      string
	flagVerbose bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fieldsync",
		Short: "Offline-first field sales client for an Odoo backend",
		Long: `fieldsync keeps a local SQLite copy of customers, sales, payments,
visits, deliveries and products in sync with an Odoo server, and replays
offline creations once connectivity returns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if flagVerbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
				&slog.HandlerOptions{Level: level})))
		},
	}

	root.PersistentFlags().StringVar(&flagDB, "db", defaultDBPath(),
		"path to the local sync database")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"enable debug logging")

	root.AddCommand(newSyncCmd())
	root.AddCommand(newQueueCmd())
	root.AddCommand(newConfigureCmd())
	return root
}

func defaultDBPath() string {
	if p := os.Getenv("FIELDSYNC_DB"); p != "" {
		return p
	}
	return "fieldsync.db"
}

func run() error {
	// A missing .env is fine; environment variables still apply.
	_ = godotenv.Load()
	return newRootCmd().Execute()
}
