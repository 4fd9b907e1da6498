package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"starnotary/pkg/accounts"
	"starnotary/pkg/config"
	"starnotary/pkg/db"
	"starnotary/pkg/stars"
)

type stores struct {
	stars    stars.StarRepository
	accounts accounts.AccountRepository
	close    func()
}

// openStores builds the ledger and account repositories for the configured
// driver. close releases whatever connection they share.
func openStores(ctx context.Context, sc config.StoreConfig, logger *zap.Logger) (stores, error) {
	switch sc.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; state is lost on restart")
		return stores{
			stars:    stars.NewMemoryStarRepository(),
			accounts: accounts.NewMemoryAccountRepository(),
			close:    func() {},
		}, nil

	case config.DriverPostgres:
		pool, err := db.Connect(ctx, sc, logger)
		if err != nil {
			return stores{}, err
		}
		return stores{
			stars:    stars.NewPostgresStarRepository(pool),
			accounts: accounts.NewPostgresAccountRepository(pool),
			close:    pool.Close,
		}, nil

	case config.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, sc.SQLitePath)
		if err != nil {
			return stores{}, err
		}
		if sc.ApplySchemaOnStart {
			if err := db.ApplySQLiteSchema(ctx, conn, sc.SchemaPath); err != nil {
				conn.Close()
				return stores{}, err
			}
		}
		logger.Info("opened sqlite store", zap.String("path", sc.SQLitePath))
		return stores{
			stars:    stars.NewSQLiteStarRepository(conn),
			accounts: accounts.NewSQLiteAccountRepository(conn),
			close:    func() { conn.Close() },
		}, nil

	default:
		return stores{}, fmt.Errorf("unknown STORE_DRIVER %q", sc.Driver)
	}
}
