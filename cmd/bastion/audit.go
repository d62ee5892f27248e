package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stratum-hq/bastion/pkg/audit"
	"stratum-hq/bastion/pkg/audit/export"
	"stratum-hq/bastion/pkg/audit/retention"
	"stratum-hq/bastion/pkg/cli"
	"stratum-hq/bastion/pkg/config"
)

var auditFlags struct {
	backend      string
	timeRange    string
	username     string
	organization string
	action       string
	resourceType string
	resourceID   string
	fieldName    string
	deniedOnly   bool
	limit        int
	offset       int
	format       string
	output       string
	pretty       bool
	noHeader     bool
	dryRun       bool
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and maintain the audit trail",
	Long: `Query, export and prune the audit trail for compliance review.

Subcommands:
  query   - Query audit events with filters
  export  - Export audit events to JSON or CSV
  prune   - Enforce the retention policy once

Examples:
  # Query the last day's events
  bastion audit query --time-range "2026-08-29T00:00:00Z/2026-08-30T00:00:00Z"

  # Show only denials for one analyst
  bastion audit query --username alpha-senior --denied-only

  # Export everything to CSV
  bastion audit export --format csv --output events.csv`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit events",
	Long: `Query audit events with various filters.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-08-29T00:00:00Z/2026-08-30T00:00:00Z"

Examples:
  # Query a specific time range
  bastion audit query --time-range "2026-08-29T00:00:00Z/2026-08-30T00:00:00Z"

  # Filter by user and action
  bastion audit query --username alpha-senior --action CELL_ACCESS_DENIED

  # Events touching one record
  bastion audit query --resource-id rec-42`,
	RunE: queryAudit,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit events",
	Long: `Export audit events to JSON or CSV for compliance handoff.

Examples:
  # Export to pretty-printed JSON
  bastion audit export --format json --pretty --output events.json

  # Export a time range to CSV
  bastion audit export --format csv --time-range "2026-08-01T00:00:00Z/2026-09-01T00:00:00Z" -o events.csv`,
	RunE: exportAudit,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Enforce the retention policy once",
	Long: `Delete audit events past the configured retention limits.

Uses the retention settings from the configuration file. With
--dry-run, reports what would be deleted without deleting anything.`,
	RunE: pruneAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditExportCmd, auditPruneCmd)

	for _, cmd := range []*cobra.Command{auditQueryCmd, auditExportCmd} {
		cmd.Flags().StringVar(&auditFlags.backend, "backend", "", "backend: sqlite, memory (uses config if not specified)")
		cmd.Flags().StringVar(&auditFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
		cmd.Flags().StringVar(&auditFlags.username, "username", "", "filter by username")
		cmd.Flags().StringVar(&auditFlags.organization, "organization", "", "filter by organization")
		cmd.Flags().StringVar(&auditFlags.action, "action", "", "filter by action (e.g. READ_RECORD, ACCESS_DENIED)")
		cmd.Flags().StringVar(&auditFlags.resourceType, "resource-type", "", "filter by resource type")
		cmd.Flags().StringVar(&auditFlags.resourceID, "resource-id", "", "filter by resource id")
		cmd.Flags().StringVar(&auditFlags.fieldName, "field-name", "", "filter by cell field name")
		cmd.Flags().BoolVar(&auditFlags.deniedOnly, "denied-only", false, "only denied events")
		cmd.Flags().StringVarP(&auditFlags.output, "output", "o", "", "output file (default: stdout)")
	}

	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", 100, "max results")
	auditQueryCmd.Flags().IntVar(&auditFlags.offset, "offset", 0, "pagination offset")
	auditQueryCmd.Flags().StringVar(&auditFlags.format, "format", "text", "output format: text, json")

	auditExportCmd.Flags().StringVar(&auditFlags.format, "format", "json", "export format: json, csv")
	auditExportCmd.Flags().BoolVar(&auditFlags.pretty, "pretty", false, "pretty-print JSON output")
	auditExportCmd.Flags().BoolVar(&auditFlags.noHeader, "no-header", false, "omit the CSV header row")

	auditPruneCmd.Flags().StringVar(&auditFlags.backend, "backend", "", "backend: sqlite, memory (uses config if not specified)")
	auditPruneCmd.Flags().BoolVar(&auditFlags.dryRun, "dry-run", false, "report without deleting")
}

// openAuditBackend opens the audit storage selected by flag or config.
func openAuditBackend() (audit.Storage, *config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	if auditFlags.backend != "" {
		cfg.Audit.Backend = auditFlags.backend
	}
	storage, err := openAuditStorage(cfg)
	if err != nil {
		return nil, nil, cli.NewCommandError("audit", err)
	}
	return storage, cfg, nil
}

// buildAuditQuery translates the command flags into a storage query.
func buildAuditQuery() (*audit.Query, error) {
	query := &audit.Query{
		Username:     auditFlags.username,
		Organization: auditFlags.organization,
		Action:       auditFlags.action,
		ResourceType: auditFlags.resourceType,
		ResourceID:   auditFlags.resourceID,
		FieldName:    auditFlags.fieldName,
		Limit:        auditFlags.limit,
		Offset:       auditFlags.offset,
	}
	if auditFlags.deniedOnly {
		denied := false
		query.WasAllowed = &denied
	}
	if auditFlags.timeRange != "" {
		parts := strings.Split(auditFlags.timeRange, "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid time range format (expected: start/end)")
		}
		startTime, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid start time: %w", err)
		}
		query.StartTime = &startTime
		endTime, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid end time: %w", err)
		}
		query.EndTime = &endTime
	}
	return query, nil
}

// outputFile opens the --output target, or stdout when unset.
func outputFile() (*os.File, func(), error) {
	if auditFlags.output == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(auditFlags.output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func queryAudit(cmd *cobra.Command, args []string) error {
	storage, _, err := openAuditBackend()
	if err != nil {
		return err
	}
	defer storage.Close()

	query, err := buildAuditQuery()
	if err != nil {
		return err
	}

	ctx := context.Background()
	events, err := storage.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("audit", fmt.Errorf("query failed: %w", err))
	}

	output, closeOutput, err := outputFile()
	if err != nil {
		return err
	}
	defer closeOutput()

	switch auditFlags.format {
	case "json":
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(output, map[string]interface{}{
			"total_events": len(events),
			"events":       events,
		})
	default:
		return outputAuditText(output, events, query)
	}
}

func outputAuditText(output *os.File, events []*audit.Event, query *audit.Query) error {
	if query.StartTime != nil && query.EndTime != nil {
		fmt.Fprintf(output, "Time range: %s to %s\n",
			query.StartTime.Format(time.RFC3339),
			query.EndTime.Format(time.RFC3339))
	}
	fmt.Fprintf(output, "Total events: %d\n", len(events))
	fmt.Fprintln(output)

	if len(events) == 0 {
		fmt.Fprintln(output, "No events found.")
		return nil
	}

	for i, event := range events {
		if i > 0 {
			fmt.Fprintln(output)
		}

		fmt.Fprintf(output, "Event ID: %s\n", event.ID)
		fmt.Fprintf(output, "Timestamp: %s\n", event.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(output, "User: %s (%s)\n", event.Username, event.Organization)
		fmt.Fprintf(output, "Action: %s\n", event.Action)
		if event.ResourceID != "" {
			fmt.Fprintf(output, "Resource: %s %s\n", event.ResourceType, event.ResourceID)
		}
		if event.FieldName != "" {
			fmt.Fprintf(output, "Field: %s\n", event.FieldName)
		}
		fmt.Fprintf(output, "Allowed: %t\n", event.WasAllowed)
		if event.DenialReason != "" {
			fmt.Fprintf(output, "Denial Reason: %s\n", event.DenialReason)
		}

		// Show limited output for large result sets
		if i >= 9 && len(events) > 10 {
			remaining := len(events) - 10
			fmt.Fprintln(output)
			fmt.Fprintf(output, "... and %d more events\n", remaining)
			fmt.Fprintf(output, "Use --limit and --offset for pagination.\n")
			break
		}
	}

	return nil
}

// exportBatchSize is how many events one export page reads.
const exportBatchSize = 500

func exportAudit(cmd *cobra.Command, args []string) error {
	storage, _, err := openAuditBackend()
	if err != nil {
		return err
	}
	defer storage.Close()

	query, err := buildAuditQuery()
	if err != nil {
		return err
	}

	ctx := context.Background()
	total, err := storage.Count(ctx, query)
	if err != nil {
		return cli.NewCommandError("audit", fmt.Errorf("count failed: %w", err))
	}

	// Page through storage so large trails don't load at once.
	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(total)
	events := make([]*audit.Event, 0, total)
	for int64(len(events)) < total {
		page := *query
		page.Limit = exportBatchSize
		page.Offset = len(events)
		batch, err := storage.Query(ctx, &page)
		if err != nil {
			progress.Error(err)
			return cli.NewCommandError("audit", fmt.Errorf("query failed: %w", err))
		}
		if len(batch) == 0 {
			break
		}
		events = append(events, batch...)
		progress.Update(int64(len(events)))
	}
	progress.Finish()

	output, closeOutput, err := outputFile()
	if err != nil {
		return err
	}
	defer closeOutput()

	switch auditFlags.format {
	case "json":
		exporter := export.NewJSONExporter(auditFlags.pretty)
		return exporter.Export(ctx, events, output)
	case "csv":
		exporter := export.NewCSVExporter(!auditFlags.noHeader)
		return exporter.Export(ctx, events, output)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, csv)", auditFlags.format)
	}
}

func pruneAudit(cmd *cobra.Command, args []string) error {
	storage, cfg, err := openAuditBackend()
	if err != nil {
		return err
	}
	defer storage.Close()

	ctx := context.Background()

	if auditFlags.dryRun {
		total, err := storage.Count(ctx, &audit.Query{})
		if err != nil {
			return cli.NewCommandError("audit", fmt.Errorf("count failed: %w", err))
		}
		fmt.Printf("Total events: %d\n", total)
		fmt.Printf("Retention: %d days, max %d events\n",
			cfg.Audit.Retention.Days, cfg.Audit.Retention.MaxEvents)
		return nil
	}

	pruner := retention.NewPruner(storage, &retention.Config{
		RetentionDays:       cfg.Audit.Retention.Days,
		MaxEvents:           cfg.Audit.Retention.MaxEvents,
		ArchiveBeforeDelete: cfg.Audit.Retention.ArchiveBeforeDelete,
		ArchivePath:         cfg.Audit.Retention.ArchivePath,
	})
	deleted, err := pruner.Prune(ctx)
	if err != nil {
		return cli.NewCommandError("audit", fmt.Errorf("prune failed: %w", err))
	}
	fmt.Printf("✓ Pruned %d events\n", deleted)
	return nil
}
