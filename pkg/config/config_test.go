package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"APP_ENV", "ENV", "SERVER_PORT", "STORE_DRIVER", "ENABLE_TLS", "CORS_ALLOWED_ORIGINS", "DB_MAX_CONNS", "DB_MAX_CONN_IDLE_TIME", "APPLY_SCHEMA_ON_START"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	require.Equal(t, "development", cfg.Env)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, DriverMemory, cfg.Store.Driver)
	require.Equal(t, 10, cfg.Store.MaxConns)
	require.Equal(t, 5*time.Minute, cfg.Store.MaxConnIdleTime)
	require.True(t, cfg.Store.ApplySchemaOnStart)
	require.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	require.False(t, cfg.TLS.EnableTLS)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "Staging")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/stars.db")
	t.Setenv("DB_MAX_CONNS", "not-a-number")
	t.Setenv("DB_MAX_CONN_IDLE_TIME", "bogus")
	t.Setenv("APPLY_SCHEMA_ON_START", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "true")

	cfg := Load()

	require.Equal(t, "staging", cfg.Env)
	require.Equal(t, "9000", cfg.Port)
	require.Equal(t, DriverSQLite, cfg.Store.Driver)
	require.Equal(t, "/tmp/stars.db", cfg.Store.SQLitePath)
	require.Equal(t, 10, cfg.Store.MaxConns)
	require.Equal(t, 5*time.Minute, cfg.Store.MaxConnIdleTime)
	require.False(t, cfg.Store.ApplySchemaOnStart)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	require.True(t, cfg.CORS.AllowCredentials)
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := Config{Env: "development", Store: StoreConfig{Driver: DriverPostgres}}
	require.Error(t, cfg.Validate())

	cfg.Store.DatabaseURL = "postgres://localhost/stars"
	require.NoError(t, cfg.Validate())
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := Config{Store: StoreConfig{Driver: "redis"}}
	require.ErrorContains(t, cfg.Validate(), "unknown STORE_DRIVER")
}

func TestTLSSettings_ProductionRequiresFiles(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ENABLE_TLS", "false")
	t.Setenv("TLS_CERT_PATH", "")
	t.Setenv("TLS_KEY_PATH", "")

	cfg := Load()

	require.True(t, cfg.TLS.EnableTLS)
	require.Equal(t, "8443", cfg.Port)
	require.ErrorContains(t, cfg.Validate(), "TLS_CERT_PATH")
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("STARNOTARY_TEST_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("STARNOTARY_TEST_KEY") })

	require.NoError(t, LoadEnvFile(path))
	require.Equal(t, "from-file", os.Getenv("STARNOTARY_TEST_KEY"))

	require.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}
