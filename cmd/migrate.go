package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/pocket-ats/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the results table in the configured database",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()

		logger := mustLogger()
		config := mustConfig(logger)

		if strings.TrimSpace(config.Database.URL) == "" {
			logger.Fatal("database url is required", zap.String("hint", "set DATABASE_URL or database.url"))
		}

		db, err := store.Connect(ctx, config.Database.URL)
		if err != nil {
			logger.Fatal("connecting to the database", zap.Error(err))
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("migrating", zap.Error(err))
		}

		logger.Info("database schema is up to date")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
