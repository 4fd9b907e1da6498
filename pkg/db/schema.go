package db

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed schema.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

func loadSchema(path, embedded string) (string, error) {
	raw := embedded
	if path != "" {
		bytes, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read schema file: %w", err)
		}
		raw = string(bytes)
	}

	sql := strings.TrimSpace(raw)
	if sql == "" {
		return "", fmt.Errorf("schema is empty: %q", path)
	}
	return sql, nil
}
