package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"stratum-hq/bastion/pkg/audit"
)

// CSVExporter exports audit events to CSV format.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// Export writes audit events to the provided writer in CSV format.
// List fields are flattened to comma-separated strings; the details map is
// flattened to its JSON encoding.
func (e *CSVExporter) Export(ctx context.Context, events []*audit.Event, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return audit.NewExportError("csv", err)
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return audit.NewExportError("csv", err)
		}
	}

	for _, event := range events {
		if err := writer.Write(eventToRow(event)); err != nil {
			return audit.NewExportError("csv", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return audit.NewExportError("csv", err)
	}
	return nil
}

func headerRow() []string {
	return []string{
		"id", "timestamp",
		"username", "organization", "user_clearance",
		"action", "resource_type", "resource_id", "record_title", "field_name",
		"classification_required", "compartments_required",
		"was_allowed", "denial_reason",
		"old_value", "new_value",
		"ip_address", "user_agent", "request_path", "request_method", "session_id",
		"details",
	}
}

func eventToRow(event *audit.Event) []string {
	details := ""
	if len(event.Details) > 0 {
		if data, err := json.Marshal(event.Details); err == nil {
			details = string(data)
		}
	}
	return []string{
		event.ID,
		event.Timestamp.Format(time.RFC3339),
		event.Username,
		event.Organization,
		string(event.UserClearance),
		event.Action,
		event.ResourceType,
		event.ResourceID,
		event.RecordTitle,
		event.FieldName,
		string(event.ClassificationRequired),
		strings.Join(event.CompartmentsRequired, ","),
		strconv.FormatBool(event.WasAllowed),
		event.DenialReason,
		event.OldValue,
		event.NewValue,
		event.IPAddress,
		event.UserAgent,
		event.RequestPath,
		event.RequestMethod,
		event.SessionID,
		details,
	}
}
