// Package report computes reporting aggregates over the audit trail.
package report

import (
	"context"
	"time"

	"stratum-hq/bastion/pkg/audit"
)

// Stats summarizes audit activity over a time window.
type Stats struct {
	PeriodHours            int              `json:"period_hours"`
	ActionsBreakdown       map[string]int64 `json:"actions_breakdown"`
	DenialsByUser          map[string]int64 `json:"denials_by_user"`
	ActivityByUser         map[string]int64 `json:"activity_by_user"`
	AccessByClassification map[string]int64 `json:"access_by_classification"`
}

// Reporter computes aggregates over an audit storage backend.
type Reporter struct {
	storage audit.Storage
}

// NewReporter creates a reporter over the given storage.
func NewReporter(storage audit.Storage) *Reporter {
	return &Reporter{storage: storage}
}

// statsQueryLimit caps how many events one stats computation reads.
const statsQueryLimit = 100000

// Stats computes the activity summary for the past window.
func (r *Reporter) Stats(ctx context.Context, window time.Duration) (*Stats, error) {
	since := time.Now().UTC().Add(-window)
	events, err := r.storage.Query(ctx, &audit.Query{
		StartTime: &since,
		Limit:     statsQueryLimit,
	})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		PeriodHours:            int(window.Hours()),
		ActionsBreakdown:       make(map[string]int64),
		DenialsByUser:          make(map[string]int64),
		ActivityByUser:         make(map[string]int64),
		AccessByClassification: make(map[string]int64),
	}
	for _, e := range events {
		stats.ActionsBreakdown[e.Action]++
		stats.ActivityByUser[e.Username]++
		if !e.WasAllowed {
			stats.DenialsByUser[e.Username]++
		}
		if e.ClassificationRequired != "" {
			stats.AccessByClassification[string(e.ClassificationRequired)]++
		}
	}
	return stats, nil
}

// RecentDenials returns the newest denied events, for security review.
func (r *Reporter) RecentDenials(ctx context.Context, limit int) ([]*audit.Event, error) {
	denied := false
	if limit <= 0 {
		limit = 50
	}
	return r.storage.Query(ctx, &audit.Query{
		WasAllowed: &denied,
		Limit:      limit,
		SortOrder:  "desc",
	})
}

// Logs returns a filtered page of the audit trail plus the total count for
// the same filters (ignoring pagination).
func (r *Reporter) Logs(ctx context.Context, query *audit.Query) ([]*audit.Event, int64, error) {
	total, err := r.storage.Count(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	events, err := r.storage.Query(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
