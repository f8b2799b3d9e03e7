// Package config provides centralized configuration management for the ingester.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config holds all application configuration.
// It is built once in main and handed to each component; nothing reads the
// environment after Load returns.
type Config struct {
	Transfer TransferConfig
	Paths    PathsConfig
	Pipeline PipelineConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Daemon   DaemonConfig
}

// TransferConfig holds remote file transfer settings.
type TransferConfig struct {
	// Mode selects the transfer client: sftp or dir (default: sftp).
	// In dir mode RemotePath is a local directory standing in for the remote store.
	Mode string `env:"TRANSFER_MODE" default:"sftp"`

	Host     string `env:"SFTP_HOST"`
	Port     int    `env:"SFTP_PORT" default:"22"`
	User     string `env:"SFTP_USER"`
	Password string `env:"SFTP_PASSWORD"`

	// KnownHosts is an optional known_hosts file used to verify the server key.
	KnownHosts string `env:"SFTP_KNOWN_HOSTS"`

	// ConnectTimeout bounds dialing and the SSH handshake (default: 30s)
	ConnectTimeout time.Duration `env:"SFTP_TIMEOUT" default:"30s"`

	// FetchTimeout bounds a single remote file copy (default: 10m)
	FetchTimeout time.Duration `env:"TRANSFER_TIMEOUT" default:"10m"`

	// RemotePath is the remote directory that is polled for deliveries.
	RemotePath string `env:"REMOTE_PATH" default:"."`

	// Suffixes lists the remote file suffixes that are fetched (default: .rar)
	Suffixes []string `env:"REMOTE_SUFFIXES" default:".rar"`
}

// PathsConfig holds local staging directories.
type PathsConfig struct {
	// Raw receives fetched archives, extracted members and plain text files.
	Raw string `env:"LOCAL_RAW_PATH" default:"data/raw"`

	// Processed holds staged artifacts waiting to be persisted.
	Processed string `env:"LOCAL_PROCESSED_PATH" default:"data/processed"`
}

// PipelineConfig holds decoding and orchestration settings.
type PipelineConfig struct {
	// Workers is the per-stage parallelism for transfers, extractions and decodes (default: 4)
	Workers int `env:"PIPELINE_WORKERS" default:"4"`

	// TextSuffixes lists local file suffixes eligible for decoding (default: .txt)
	TextSuffixes []string `env:"TEXT_SUFFIXES" default:".txt"`

	// LayoutsFile is an optional YAML file of layouts and rules registered after the built-in ones.
	LayoutsFile string `env:"LAYOUTS_FILE"`

	// StrictConversion makes primitive conversion failures fatal for the file
	// instead of keeping the raw text (default: false)
	StrictConversion bool `env:"STRICT_CONVERSION" default:"false"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility.
	// When empty the POSTGRES_* variables are used instead.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	Host     string `env:"POSTGRES_HOST"`
	Port     int    `env:"POSTGRES_PORT" default:"5432"`
	User     string `env:"POSTGRES_USER"`
	Password string `env:"POSTGRES_PASSWORD"`
	Name     string `env:"POSTGRES_DB"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// ConnectRetries is how many times connection establishment is attempted (default: 5)
	ConnectRetries int `env:"DB_CONNECT_RETRIES" default:"5"`

	// ConnectDelay is the fixed pause between connection attempts (default: 5s)
	ConnectDelay time.Duration `env:"DB_CONNECT_DELAY" default:"5s"`

	// Dedupe skips files whose checksum was already ingested (default: true)
	Dedupe bool `env:"STORE_DEDUPE" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// DaemonConfig holds settings for the long-running serve mode.
type DaemonConfig struct {
	// Schedule is a cron expression for periodic runs (default: every 15 minutes)
	Schedule string `env:"SCHEDULE_CRON" default:"*/15 * * * *"`

	// WatchRawDir triggers a run when files land in the raw directory (default: false)
	WatchRawDir bool `env:"WATCH_RAW_DIR" default:"false"`

	StatusHost string `env:"STATUS_HOST" default:"127.0.0.1"`
	StatusPort int    `env:"STATUS_PORT" default:"8080"`

	// APIKeys, when set, are required in X-API-Key to trigger runs over HTTP.
	APIKeys []string `env:"STATUS_API_KEYS"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// Addr returns the SFTP server address in host:port format.
func (c *TransferConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StatusAddr returns the status server listen address in host:port format.
func (c *DaemonConfig) StatusAddr() string {
	return net.JoinHostPort(c.StatusHost, strconv.Itoa(c.StatusPort))
}

// ConnString returns the PostgreSQL connection string, building it from the
// POSTGRES_* settings when DATABASE_URL is not set.
func (c *DatabaseConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}
