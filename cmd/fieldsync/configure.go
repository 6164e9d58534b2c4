package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigureCmd() *cobra.Command {
	var apiKey, baseURL string

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Store the server URL and API key",
		Long: `Store the Odoo server base URL and API key in the local database.
Values can also be supplied per run through FIELDSYNC_BASE_URL and
FIELDSYNC_API_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flagDB, nil)
			if err != nil {
				return err
			}
			defer a.close()

			if apiKey == "" && baseURL == "" {
				url, err := a.settings.BaseURL(ctx)
				if err != nil {
					return err
				}
				key, err := a.settings.APIKey(ctx)
				if err != nil {
					return err
				}
				if key != "" {
					key = "configured"
				} else {
					key = "not configured"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "server:  %s\napi key: %s\n", url, key)
				return nil
			}
			if baseURL != "" {
				if err := a.settings.SetBaseURL(ctx, baseURL); err != nil {
					return err
				}
			}
			if apiKey != "" {
				if err := a.settings.SetAPIKey(ctx, apiKey); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration saved")
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the android_api endpoints")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "server base URL, e.g. https://erp.example.com/android_api")
	return cmd
}
