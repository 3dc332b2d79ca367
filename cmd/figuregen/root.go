package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/figuregen-backend/internal/app"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "figuregen",
		Short:         "Figure generation backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newBatchCmd())
	return root
}

// bootstrap loads configuration and the logger shared by every command.
func bootstrap() (app.Config, *logger.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, nil, err
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		return app.Config{}, nil, err
	}
	return cfg, log, nil
}
