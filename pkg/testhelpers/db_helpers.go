package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"starnotary/pkg/db"
)

var uniqueCounter int64

func nextSuffix() int64 {
	return atomic.AddInt64(&uniqueCounter, 1)
}

// PostgresPool connects to DATABASE_URL_FOR_TEST and applies the schema. The
// test is skipped when the variable is unset.
func PostgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL_FOR_TEST")
	if dsn == "" {
		t.Skip("DATABASE_URL_FOR_TEST not set; skipping postgres tests")
	}

	ctx := context.Background()
	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	t.Cleanup(pool.Close)

	require.NoError(t, db.ApplySchema(ctx, pool, ""))
	return pool
}

// TruncateLedger empties the star, balance and history tables.
func TruncateLedger(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), "TRUNCATE TABLE star_events, balances, stars RESTART IDENTITY CASCADE")
	require.NoError(t, err)
}

// SQLite opens a private in-memory sqlite database with the schema applied.
func SQLite(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, db.MemorySQLite)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.ApplySQLiteSchema(ctx, conn, ""))
	return conn
}

// CreateTestAccount inserts a minimal account row and returns its uuid.
func CreateTestAccount(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	suffix := nextSuffix()
	uuid := fmt.Sprintf("test-account-%d", suffix)
	email := fmt.Sprintf("%s@example.com", uuid)

	_, err := pool.Exec(context.Background(),
		"INSERT INTO accounts (uuid, name, email, password_hash) VALUES ($1, $2, $3, $4)",
		uuid, uuid, email, "hash")
	require.NoError(t, err)
	return uuid
}

// CreateTestStar inserts an unlisted star for owner and returns its id.
func CreateTestStar(t *testing.T, pool *pgxpool.Pool, owner string) int64 {
	t.Helper()

	id := 1_000_000 + nextSuffix()
	_, err := pool.Exec(context.Background(),
		"INSERT INTO stars (id, name, owner) VALUES ($1, $2, $3)",
		id, fmt.Sprintf("test-star-%d", id), owner)
	require.NoError(t, err)
	return id
}
