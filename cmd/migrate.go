package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/stepstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the step-output database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := stepstore.New(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open step store")
		}
		defer store.Close() //nolint:errcheck

		if err := store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate step store")
		}
		zap.L().Info("migration complete", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
