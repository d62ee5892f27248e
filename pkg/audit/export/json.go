// Package export provides audit trail exporters for compliance handoff.
package export

import (
	"context"
	"encoding/json"
	"io"

	"stratum-hq/bastion/pkg/audit"
)

// JSONExporter exports audit events to JSON format.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// Export writes audit events to the provided writer as a JSON array.
func (e *JSONExporter) Export(ctx context.Context, events []*audit.Event, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return audit.NewExportError("json", err)
	}
	if len(events) == 0 {
		_, err := w.Write([]byte("[]"))
		return err
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(events, "", "  ")
	} else {
		data, err = json.Marshal(events)
	}
	if err != nil {
		return audit.NewExportError("json", err)
	}

	if _, err := w.Write(data); err != nil {
		return audit.NewExportError("json", err)
	}
	return nil
}
