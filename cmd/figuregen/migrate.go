package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yungbote/figuregen-backend/internal/app"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			database, err := app.OpenDatabase(log, cfg)
			if err != nil {
				return err
			}
			defer database.Close()
			fmt.Printf("%s schema is up to date (%s)\n", color.GreenString("✓"), cfg.Database.Driver)
			return nil
		},
	}
}
