package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"starnotary/pkg/config"
	"starnotary/pkg/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema of the configured store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		return migrate(ctx, cfg.Store, logger)
	},
}

func migrate(ctx context.Context, sc config.StoreConfig, logger *zap.Logger) error {
	switch sc.Driver {
	case config.DriverPostgres:
		sc.ApplySchemaOnStart = false
		pool, err := db.Connect(ctx, sc, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.ApplySchema(ctx, pool, sc.SchemaPath); err != nil {
			return err
		}

	case config.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, sc.SQLitePath)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := db.ApplySQLiteSchema(ctx, conn, sc.SchemaPath); err != nil {
			return err
		}

	case config.DriverMemory:
		return fmt.Errorf("the %s store has no schema; set STORE_DRIVER to %s or %s",
			config.DriverMemory, config.DriverPostgres, config.DriverSQLite)

	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", sc.Driver)
	}

	logger.Info("schema applied", zap.String("driver", sc.Driver))
	return nil
}
