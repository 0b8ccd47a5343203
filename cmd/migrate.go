package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"foresight/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := storage.Open(cfg.BasicConfig.Database, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		dbType := storage.Normalize(cfg.BasicConfig.Database)
		if err := storage.Migrate(db, dbType); err != nil {
			return err
		}
		log.Info().Str("database", dbType).Msg("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
