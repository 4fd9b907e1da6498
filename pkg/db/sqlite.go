package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const busyTimeoutMs = 5000

// MemorySQLite is the path OpenSQLite treats as a private in-memory database.
const MemorySQLite = ":memory:"

// OpenSQLite opens (creating if needed) the sqlite database at path with
// foreign keys enabled. The pool is pinned to a single connection: sqlite
// allows one writer, and an in-memory database lives only as long as its
// connection.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	var connStr string
	if path == MemorySQLite {
		connStr = "file::memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		connStr = fmt.Sprintf("file:%s", filepath.Clean(path))
	}
	connStr += fmt.Sprintf("?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", busyTimeoutMs)

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return conn, nil
}

// ApplySQLiteSchema executes the sqlite schema. schemaPath overrides the
// embedded schema when set.
func ApplySQLiteSchema(ctx context.Context, conn *sql.DB, schemaPath string) error {
	schema, err := loadSchema(schemaPath, sqliteSchema)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}
