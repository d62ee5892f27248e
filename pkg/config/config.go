package config

import (
	"strings"
	"time"
)

// Config is the root configuration structure for Bastion.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Auth contains identity provider configuration.
	Auth AuthConfig `yaml:"auth"`

	// Records contains records store configuration.
	Records RecordsConfig `yaml:"records"`

	// Audit contains audit trail configuration.
	Audit AuditConfig `yaml:"audit"`

	// Search contains search configuration.
	Search SearchConfig `yaml:"search"`

	// Policy contains sharing policy configuration.
	Policy PolicyConfig `yaml:"policy"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the address the server binds to (host:port).
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request on a
	// keep-alive connection.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is how long graceful shutdown waits for in-flight
	// requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// AuthConfig contains identity provider settings. When both URLs are empty
// the server trusts the gateway's claims header without checking that its
// signing key is currently published by the provider.
type AuthConfig struct {
	// IssuerURL is the identity provider's issuer URL.
	IssuerURL string `yaml:"issuer_url"`

	// JWKSURL is the provider's signing-key endpoint. Derived from
	// IssuerURL when empty.
	JWKSURL string `yaml:"jwks_url"`

	// KeyCacheTTL is how long fetched signing keys are served without
	// refresh.
	KeyCacheTTL time.Duration `yaml:"key_cache_ttl"`
}

// ResolvedJWKSURL returns the signing-key endpoint: JWKSURL when set,
// otherwise the well-known path under IssuerURL. Empty when neither URL is
// configured.
func (a *AuthConfig) ResolvedJWKSURL() string {
	if a.JWKSURL != "" {
		return a.JWKSURL
	}
	if a.IssuerURL == "" {
		return ""
	}
	return strings.TrimRight(a.IssuerURL, "/") + "/.well-known/jwks.json"
}

// RecordsConfig contains records store settings.
type RecordsConfig struct {
	// Backend selects the store implementation: "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite database settings, shared by the records
// store and the audit trail.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// DisableWAL turns off Write-Ahead Logging mode. WAL is on by default;
	// an opt-out flag avoids the YAML unset-vs-false ambiguity.
	DisableWAL bool `yaml:"disable_wal"`

	// BusyTimeout is the duration to wait when the database is locked.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AuditConfig contains audit trail settings.
type AuditConfig struct {
	// Backend selects the storage implementation: "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// WriteTimeout bounds each synchronous audit write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Retention configures pruning of old events.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig contains audit retention settings.
type RetentionConfig struct {
	// Days is the retention period; events older than this are pruned.
	// Zero disables age-based pruning.
	Days int `yaml:"days"`

	// MaxEvents caps the total number of retained events. Zero disables
	// count-based pruning.
	MaxEvents int64 `yaml:"max_events"`

	// PruneSchedule is a cron expression for scheduled pruning. Empty
	// disables the scheduler.
	PruneSchedule string `yaml:"prune_schedule"`

	// ArchiveBeforeDelete exports events to JSON before deletion.
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// ArchivePath is the directory archive files are written to.
	ArchivePath string `yaml:"archive_path"`
}

// SearchConfig contains search settings.
type SearchConfig struct {
	// DefaultLimit is the result count when a request does not specify one.
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit caps the result count a request may ask for.
	MaxLimit int `yaml:"max_limit"`
}

// PolicyConfig contains sharing policy settings.
type PolicyConfig struct {
	// Path is the sharing policy YAML file. Empty uses built-in defaults.
	Path string `yaml:"path"`

	// Watch enables hot reload of the policy file.
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period before a reload fires.
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// TelemetryConfig contains logging and metrics settings.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is the output format: json or text.
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path.
	Path string `yaml:"path"`

	// Namespace prefixes all metric names.
	Namespace string `yaml:"namespace"`

	// AuditWriteDurationBuckets are the histogram buckets (seconds) for
	// audit write latency.
	AuditWriteDurationBuckets []float64 `yaml:"audit_write_duration_buckets"`
}
