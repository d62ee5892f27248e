package config

import (
	"errors"
	"testing"
)

func validConfig() *Config {
	return DefaultConfig()
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "empty listen address",
			mutate: func(c *Config) { c.Server.ListenAddress = "" },
			field:  "server.listen_address",
		},
		{
			name:   "negative read timeout",
			mutate: func(c *Config) { c.Server.ReadTimeout = -1 },
			field:  "server.read_timeout",
		},
		{
			name:   "unknown records backend",
			mutate: func(c *Config) { c.Records.Backend = "postgres" },
			field:  "records.backend",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Audit.Backend = "sqlite"
				c.Audit.SQLite.Path = ""
			},
			field: "audit.sqlite.path",
		},
		{
			name:   "bad cron expression",
			mutate: func(c *Config) { c.Audit.Retention.PruneSchedule = "every 5 minutes" },
			field:  "audit.retention.prune_schedule",
		},
		{
			name: "archive without path",
			mutate: func(c *Config) {
				c.Audit.Retention.ArchiveBeforeDelete = true
				c.Audit.Retention.ArchivePath = ""
			},
			field: "audit.retention.archive_path",
		},
		{
			name: "default limit above max",
			mutate: func(c *Config) {
				c.Search.DefaultLimit = 500
				c.Search.MaxLimit = 100
			},
			field: "search.default_limit",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			field:  "telemetry.logging.level",
		},
		{
			name:   "unknown log format",
			mutate: func(c *Config) { c.Telemetry.Logging.Format = "logfmt" },
			field:  "telemetry.logging.format",
		},
		{
			name: "non-positive histogram bucket",
			mutate: func(c *Config) {
				c.Telemetry.Metrics.AuditWriteDurationBuckets = []float64{0.01, 0}
			},
			field: "telemetry.metrics.audit_write_duration_buckets",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %s in %v", tt.field, verr.Errors)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddress = ""
	cfg.Records.Backend = "postgres"
	cfg.Telemetry.Logging.Level = "verbose"

	err := Validate(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("error count = %d, want 3: %v", len(verr.Errors), verr.Errors)
	}
}
