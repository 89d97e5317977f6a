package main

import (
	"github.com/littlegabriel/gabriel/persistence"
	"github.com/spf13/cobra"
)

func migrateCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := Bootstrap(*configFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := WithPersistence(ctx, app); err != nil {
				return err
			}
			defer app.Close()

			if err := persistence.Migrate(ctx, app.db); err != nil {
				return err
			}

			success("migrations applied (%s)", persistence.DialectFor(app.config.Database.URL))
			return nil
		},
	}
}
