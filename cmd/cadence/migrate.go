package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, closeStore, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore() //nolint:errcheck // best-effort cleanup

		if err := st.Ping(ctx); err != nil {
			return fmt.Errorf("ping %s store: %w", cfg.Store, err)
		}
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("store migrated", "store", cfg.Store)
		return nil
	},
}
