package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"stratum-hq/bastion/pkg/audit"
	"stratum-hq/bastion/pkg/audit/recorder"
	"stratum-hq/bastion/pkg/audit/report"
	"stratum-hq/bastion/pkg/audit/retention"
	auditstorage "stratum-hq/bastion/pkg/audit/storage"
	"stratum-hq/bastion/pkg/cli"
	"stratum-hq/bastion/pkg/config"
	"stratum-hq/bastion/pkg/identity"
	"stratum-hq/bastion/pkg/policy"
	"stratum-hq/bastion/pkg/search"
	"stratum-hq/bastion/pkg/server"
	"stratum-hq/bastion/pkg/store"
	"stratum-hq/bastion/pkg/telemetry/health"
	"stratum-hq/bastion/pkg/telemetry/logging"
	"stratum-hq/bastion/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Bastion API server",
	Long: `Start the Bastion API server with the specified configuration.

The server listens on the configured address and serves record access,
search and audit endpoints behind the access-control engine.

Examples:
  # Start with default config
  bastion run

  # Start with custom config
  bastion run --config /etc/bastion/config.yaml

  # Override listen address
  bastion run --listen 0.0.0.0:8080

  # Validate config without starting the server
  bastion run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if _, err := logging.Setup(cfg.Telemetry.Logging, os.Stdout); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Bastion v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	ctx := cli.SetupSignalHandler()

	recordsStore, err := openRecordsStore(cfg)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open records store: %w", err))
	}
	defer recordsStore.Close()
	fmt.Printf("✓ Records store initialized (%s)\n", cfg.Records.Backend)

	auditStorage, err := openAuditStorage(cfg)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open audit storage: %w", err))
	}
	defer auditStorage.Close()
	fmt.Printf("✓ Audit trail initialized (%s)\n", cfg.Audit.Backend)

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	auditRecorder := recorder.NewRecorder(auditStorage, &recorder.Config{
		WriteTimeout: cfg.Audit.WriteTimeout,
		Metrics:      collector,
	})
	reporter := report.NewReporter(auditStorage)

	// Start the retention scheduler when pruning is configured.
	if cfg.Audit.Retention.PruneSchedule != "" &&
		(cfg.Audit.Retention.Days > 0 || cfg.Audit.Retention.MaxEvents > 0) {
		pruner := retention.NewPruner(auditStorage, &retention.Config{
			RetentionDays:       cfg.Audit.Retention.Days,
			MaxEvents:           cfg.Audit.Retention.MaxEvents,
			PruneSchedule:       cfg.Audit.Retention.PruneSchedule,
			ArchiveBeforeDelete: cfg.Audit.Retention.ArchiveBeforeDelete,
			ArchivePath:         cfg.Audit.Retention.ArchivePath,
		})
		if err := pruner.Scheduler().Start(ctx); err != nil {
			slog.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer pruner.Scheduler().Stop()
			if next := pruner.Scheduler().NextRun(); next != nil {
				slog.Debug("audit retention scheduler started", "next_run", next)
			}
		}
	}

	policyManager, err := policy.NewManager(cfg.Policy.Path)
	if err != nil {
		return cli.NewConfigError("policy.path", err.Error())
	}
	if cfg.Policy.Watch && cfg.Policy.Path != "" {
		watcher, err := policy.NewWatcher(policyManager, &policy.WatcherConfig{
			Path:             cfg.Policy.Path,
			DebounceInterval: cfg.Policy.DebounceInterval,
		})
		if err != nil {
			slog.Warn("failed to start policy watcher", "error", err)
		} else {
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					slog.Error("policy watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
			fmt.Printf("✓ Policy hot reload enabled (%s)\n", cfg.Policy.Path)
		}
	}

	// Gateway-trust by default; with a provider configured, assertions are
	// additionally checked against the provider's published signing keys.
	var resolver server.PrincipalResolver = server.HeaderResolver{}
	if jwksURL := cfg.Auth.ResolvedJWKSURL(); jwksURL != "" {
		keyCache := identity.NewKeyCache(
			identity.NewHTTPFetcher(nil, jwksURL),
			identity.KeyCacheConfig{TTL: cfg.Auth.KeyCacheTTL},
		)
		resolver = server.NewKeyVerifiedResolver(keyCache)
		fmt.Printf("✓ Signing-key verification enabled (%s)\n", jwksURL)
	}

	healthChecker := health.New(0)
	healthChecker.Register("records_store", func(ctx context.Context) error {
		_, err := recordsStore.List(ctx, &store.ListQuery{Limit: 1})
		return err
	})
	healthChecker.Register("audit_storage", func(ctx context.Context) error {
		_, err := auditStorage.Count(ctx, &audit.Query{Limit: 1})
		return err
	})

	srv := server.NewServer(cfg, server.Deps{
		Store:    recordsStore,
		Recorder: auditRecorder,
		Reporter: reporter,
		Policy:   policyManager,
		Index:    search.NewIndex(),
		Metrics:  collector,
		Health:   healthChecker,
		Resolver: resolver,
	})

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/healthz\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Println("✓ Server stopped")
	return nil
}

// openRecordsStore builds the records backend selected by the configuration.
func openRecordsStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Records.Backend {
	case "sqlite":
		return store.NewSQLiteStore(&store.SQLiteConfig{
			Path:         cfg.Records.SQLite.Path,
			MaxOpenConns: cfg.Records.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Records.SQLite.MaxIdleConns,
			WALMode:      !cfg.Records.SQLite.DisableWAL,
			BusyTimeout:  cfg.Records.SQLite.BusyTimeout,
		})
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported records backend: %s (supported: sqlite, memory)", cfg.Records.Backend)
	}
}

// openAuditStorage builds the audit backend selected by the configuration.
func openAuditStorage(cfg *config.Config) (audit.Storage, error) {
	switch cfg.Audit.Backend {
	case "sqlite":
		return auditstorage.NewSQLiteStorage(&auditstorage.SQLiteConfig{
			Path:         cfg.Audit.SQLite.Path,
			MaxOpenConns: cfg.Audit.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Audit.SQLite.MaxIdleConns,
			WALMode:      !cfg.Audit.SQLite.DisableWAL,
			BusyTimeout:  cfg.Audit.SQLite.BusyTimeout,
		})
	case "memory":
		return auditstorage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported audit backend: %s (supported: sqlite, memory)", cfg.Audit.Backend)
	}
}
