package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hush/pkg/bootstrap"
	"hush/pkg/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert the PostgreSQL rule schema",
	}
	cmd.AddCommand(migrateRunCmd(migrations.Up, "Apply all pending migrations"))
	cmd.AddCommand(migrateRunCmd(migrations.Down, "Revert the last migration"))
	return cmd
}

func migrateRunCmd(direction migrations.Direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(direction),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			db, err := bootstrap.NewDatabaseConnector(cfg, log).InitPostgreSQL(ctx)
			if err != nil {
				return err
			}
			if db == nil {
				return fmt.Errorf("migrate needs database.postgres.host")
			}
			defer db.Close()

			path := cfg.Database.MigrationsPath
			if err := migrations.MigratePostgres(db, path, direction); err != nil {
				return err
			}

			version, dirty, err := migrations.PostgresVersion(db, path)
			if err != nil {
				return err
			}
			log.InfowCtx(ctx, "Migrations finished", "direction", direction, "version", version, "dirty", dirty)
			return nil
		},
	}
}
