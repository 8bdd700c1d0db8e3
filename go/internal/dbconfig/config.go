package dbconfig

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds Postgres connection settings for the discovery registry.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// Table stores session_id -> address rows.
	Table string
	// ConnectTimeout bounds the initial ping.
	ConnectTimeout time.Duration
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		port = 5432
	}
	timeout, err := time.ParseDuration(getEnv("DB_CONNECT_TIMEOUT", "5s"))
	if err != nil {
		timeout = 5 * time.Second
	}

	return Config{
		Host:           getEnv("DB_HOST", "localhost"),
		Port:           port,
		User:           getEnv("DB_USER", "postgres"),
		Password:       getEnv("DB_PASSWORD", "postgres"),
		Database:       getEnv("DB_NAME", "timersync"),
		SSLMode:        getEnv("DB_SSLMODE", "disable"),
		Table:          getEnv("DB_DISCOVERY_TABLE", "session_addresses"),
		ConnectTimeout: timeout,
	}
}

// DSN returns the Postgres connection URL.
func (c Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
