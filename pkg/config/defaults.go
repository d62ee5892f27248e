package config

import "time"

// Default values applied when fields are omitted from the configuration file.
const (
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20 // 1 MB

	DefaultKeyCacheTTL = 5 * time.Minute

	DefaultRecordsBackend = "memory"
	DefaultRecordsDBPath  = "data/records.db"
	DefaultAuditBackend   = "sqlite"
	DefaultAuditDBPath    = "data/audit.db"

	DefaultMaxOpenConns = 10
	DefaultMaxIdleConns = 5
	DefaultBusyTimeout  = 5 * time.Second

	DefaultAuditWriteTimeout = 5 * time.Second
	DefaultRetentionDays     = 365
	DefaultPruneSchedule     = "0 3 * * *"
	DefaultArchivePath       = "data/archive"

	DefaultSearchLimit    = 20
	DefaultSearchMaxLimit = 100

	DefaultPolicyDebounce = 100 * time.Millisecond

	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
	DefaultMetricsPath = "/metrics"
	DefaultNamespace   = "bastion"
)

// DefaultConfig returns a configuration with all default values applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in default values for any unset fields. Explicitly set
// zero values that are meaningful (e.g. retention.days: 0 to disable age
// pruning) cannot be distinguished from omissions for numeric fields; such
// fields default only when the whole section is absent in practice, so the
// defaults here favor safe behavior.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if cfg.Auth.KeyCacheTTL == 0 {
		cfg.Auth.KeyCacheTTL = DefaultKeyCacheTTL
	}

	if cfg.Records.Backend == "" {
		cfg.Records.Backend = DefaultRecordsBackend
	}
	applySQLiteDefaults(&cfg.Records.SQLite, DefaultRecordsDBPath)

	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	applySQLiteDefaults(&cfg.Audit.SQLite, DefaultAuditDBPath)
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = DefaultAuditWriteTimeout
	}
	if cfg.Audit.Retention.Days == 0 && cfg.Audit.Retention.MaxEvents == 0 {
		cfg.Audit.Retention.Days = DefaultRetentionDays
		cfg.Audit.Retention.PruneSchedule = DefaultPruneSchedule
		cfg.Audit.Retention.ArchiveBeforeDelete = true
	}
	if cfg.Audit.Retention.ArchivePath == "" {
		cfg.Audit.Retention.ArchivePath = DefaultArchivePath
	}

	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = DefaultSearchLimit
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = DefaultSearchMaxLimit
	}

	if cfg.Policy.DebounceInterval == 0 {
		cfg.Policy.DebounceInterval = DefaultPolicyDebounce
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultNamespace
	}
}

func applySQLiteDefaults(cfg *SQLiteConfig, defaultPath string) {
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = DefaultMaxOpenConns
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = DefaultMaxIdleConns
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = DefaultBusyTimeout
	}
}
