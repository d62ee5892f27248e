// Package retention enforces audit trail retention policies.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"stratum-hq/bastion/pkg/audit"
	"stratum-hq/bastion/pkg/audit/export"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain audit events.
	// 0 means keep events forever (no pruning).
	RetentionDays int

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string

	// ArchiveBeforeDelete enables archiving events before deletion.
	ArchiveBeforeDelete bool

	// ArchivePath is the directory to store archived events.
	ArchivePath string

	// MaxEvents is the maximum number of events to keep.
	// 0 means unlimited.
	MaxEvents int64
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays:       365,
		PruneSchedule:       "0 3 * * *",
		ArchiveBeforeDelete: true,
		ArchivePath:         "data/archives/",
		MaxEvents:           0,
	}
}

// Pruner enforces retention policies on the audit trail.
type Pruner struct {
	storage   audit.Storage
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewPruner creates a new retention pruner.
func NewPruner(storage audit.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	pruner := &Pruner{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "audit.retention"),
	}
	pruner.scheduler = NewScheduler(pruner)
	return pruner
}

// Scheduler returns the pruner's cron scheduler.
func (p *Pruner) Scheduler() *Scheduler {
	return p.scheduler
}

// Prune deletes audit events older than the retention period or exceeding
// the max event count. Age-based pruning runs first, then count-based.
// Returns the total number of events deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var totalDeleted int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return totalDeleted, err
		}
		totalDeleted += deleted
		p.logger.Info("pruned audit events by age",
			"deleted_count", deleted,
			"retention_days", p.config.RetentionDays,
		)
	}

	if p.config.MaxEvents > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return totalDeleted, err
		}
		totalDeleted += deleted
		p.logger.Info("pruned audit events by count",
			"deleted_count", deleted,
			"max_events", p.config.MaxEvents,
		)
	}

	return totalDeleted, nil
}

// pruneByAge deletes events older than the retention period.
func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -p.config.RetentionDays)
	query := &audit.Query{EndTime: &cutoff}

	if p.config.ArchiveBeforeDelete {
		if err := p.archive(ctx, query); err != nil {
			return 0, audit.NewRetentionError("age", err)
		}
	}

	deleted, err := p.storage.Delete(ctx, query)
	if err != nil {
		return 0, audit.NewRetentionError("age", err)
	}
	return deleted, nil
}

// pruneByCount deletes the oldest events when the total exceeds MaxEvents.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &audit.Query{})
	if err != nil {
		return 0, audit.NewRetentionError("count", err)
	}
	if count <= p.config.MaxEvents {
		return 0, nil
	}

	toDelete := int(count - p.config.MaxEvents)

	// Oldest first, exactly as many as we intend to remove.
	oldest, err := p.storage.Query(ctx, &audit.Query{
		Limit:     toDelete,
		SortBy:    "timestamp",
		SortOrder: "asc",
	})
	if err != nil {
		return 0, audit.NewRetentionError("count", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	sort.Slice(oldest, func(i, j int) bool { return oldest[i].Timestamp.Before(oldest[j].Timestamp) })
	cutoff := oldest[len(oldest)-1].Timestamp
	query := &audit.Query{EndTime: &cutoff}

	if p.config.ArchiveBeforeDelete {
		if err := p.archiveEvents(ctx, oldest); err != nil {
			return 0, audit.NewRetentionError("count", err)
		}
	}

	deleted, err := p.storage.Delete(ctx, query)
	if err != nil {
		return 0, audit.NewRetentionError("count", err)
	}
	return deleted, nil
}

// archive exports the events matching query to a timestamped JSON file.
func (p *Pruner) archive(ctx context.Context, query *audit.Query) error {
	// No limit: archive everything about to be deleted.
	full := *query
	full.Limit = int(^uint(0) >> 1)
	events, err := p.storage.Query(ctx, &full)
	if err != nil {
		return err
	}
	return p.archiveEvents(ctx, events)
}

// archiveEvents writes events to the archive directory as JSON.
func (p *Pruner) archiveEvents(ctx context.Context, events []*audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	name := fmt.Sprintf("audit-archive-%s.json", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(p.config.ArchivePath, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	exporter := export.NewJSONExporter(false)
	if err := exporter.Export(ctx, events, f); err != nil {
		return err
	}

	p.logger.Info("archived audit events before deletion",
		"event_count", len(events),
		"path", path,
	)
	return nil
}
