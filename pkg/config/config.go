package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env      string
	Port     string
	LogLevel string

	Store    StoreConfig
	CORS     CORSConfig
	SendGrid SendGridConfig
	TLS      TLSSettings
}

type StoreConfig struct {
	Driver             string
	DatabaseURL        string
	SQLitePath         string
	MaxConns           int
	MinConns           int
	MaxConnIdleTime    time.Duration
	ApplySchemaOnStart bool
	SchemaPath         string
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

type SendGridConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string
}

// TLSSettings holds environment-driven TLS configuration.
type TLSSettings struct {
	EnableTLS       bool
	CertPath        string
	KeyPath         string
	CertPEM         string
	KeyPEM          string
	Env             string // "production" or "development"
	AllowSelfSigned bool   // allow generating self-signed in dev when files are missing
}

// LoadEnvFile loads key/value pairs from path into the process environment.
// A missing file is reported as an error so the caller can decide to ignore it.
func LoadEnvFile(path string) error {
	if path == "" {
		return godotenv.Load()
	}
	return godotenv.Load(path)
}

// Load reads the configuration from environment variables.
func Load() Config {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		env = strings.ToLower(strings.TrimSpace(os.Getenv("ENV")))
	}
	if env == "" {
		env = "development"
	}

	cfg := Config{
		Env:      env,
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Store: StoreConfig{
			Driver:             strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
			DatabaseURL:        os.Getenv("DATABASE_URL"),
			SQLitePath:         getEnv("SQLITE_PATH", "starnotary.db"),
			MaxConns:           getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:           getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnIdleTime:    getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "5m"),
			ApplySchemaOnStart: getEnvAsBool("APPLY_SCHEMA_ON_START", true),
			SchemaPath:         os.Getenv("SCHEMA_PATH"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   parseOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
		},
		SendGrid: SendGridConfig{
			APIKey:      os.Getenv("SENDGRID_API_KEY"),
			SenderEmail: os.Getenv("SENDGRID_SENDER_EMAIL"),
			SenderName:  os.Getenv("SENDGRID_SENDER_NAME"),
		},
		TLS: loadTLSSettings(env),
	}

	cfg.Port = os.Getenv("SERVER_PORT")
	if cfg.Port == "" {
		if cfg.TLS.EnableTLS {
			cfg.Port = "8443"
		} else {
			cfg.Port = "8080"
		}
	}

	return cfg
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s store", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	return c.TLS.Validate()
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// loadTLSSettings reads TLS settings from environment variables.
// Vars:
// - ENABLE_TLS: true/false
// - TLS_CERT_PATH / TLS_KEY_PATH: file paths to PEM cert/key
// - TLS_CERT / TLS_KEY: inline PEM
// - TLS_SELF_SIGNED: true/false (dev convenience)
func loadTLSSettings(env string) TLSSettings {
	enableTLS := getEnvAsBool("ENABLE_TLS", false)
	// Enforce TLS in production
	if env == "production" {
		enableTLS = true
	}

	return TLSSettings{
		EnableTLS:       enableTLS,
		CertPath:        os.Getenv("TLS_CERT_PATH"),
		KeyPath:         os.Getenv("TLS_KEY_PATH"),
		CertPEM:         os.Getenv("TLS_CERT"),
		KeyPEM:          os.Getenv("TLS_KEY"),
		Env:             env,
		AllowSelfSigned: getEnvAsBool("TLS_SELF_SIGNED", true),
	}
}

// Validate ensures TLS settings are safe for the selected environment.
func (s TLSSettings) Validate() error {
	if s.Env == "production" {
		if !s.EnableTLS {
			return fmt.Errorf("TLS must be enabled in production")
		}
		if s.CertPath == "" || s.KeyPath == "" {
			return fmt.Errorf("TLS_CERT_PATH and TLS_KEY_PATH are required in production")
		}
	}
	return nil
}

func parseOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		o := strings.TrimSpace(p)
		if o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}
