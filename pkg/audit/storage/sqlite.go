// Package storage provides audit storage backends.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"stratum-hq/bastion/pkg/audit"
	"stratum-hq/bastion/pkg/classification"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements audit.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage creates a new SQLite storage backend. It initializes the
// database schema and enables WAL mode if configured.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "audit.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite audit storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return audit.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Store persists an audit event.
func (s *SQLiteStorage) Store(ctx context.Context, event *audit.Event) error {
	compartments, _ := json.Marshal(event.CompartmentsRequired)
	details, _ := json.Marshal(event.Details)

	query := `
		INSERT INTO audit_events (
			id, timestamp,
			username, organization, user_clearance,
			action, resource_type, resource_id, record_title, field_name,
			classification_required, compartments_required,
			was_allowed, denial_reason,
			old_value, new_value,
			ip_address, user_agent, request_path, request_method, session_id,
			details
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)
	`

	var denialReason interface{}
	if event.DenialReason != "" {
		denialReason = event.DenialReason
	}

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.Timestamp,
		event.Username, event.Organization, string(event.UserClearance),
		event.Action, event.ResourceType, event.ResourceID, event.RecordTitle, event.FieldName,
		string(event.ClassificationRequired), string(compartments),
		event.WasAllowed, denialReason,
		event.OldValue, event.NewValue,
		event.IPAddress, event.UserAgent, event.RequestPath, event.RequestMethod, event.SessionID,
		string(details),
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}

	return nil
}

// Query retrieves audit events matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Event, error) {
	whereClause, args := buildWhereClause(query)

	sqlQuery := "SELECT * FROM audit_events"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	sqlQuery += fmt.Sprintf(" ORDER BY %s %s", sortColumn(query.SortBy), sortOrder(query.SortOrder))

	limit := 100
	if query.Limit > 0 {
		limit = query.Limit
	}
	sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	events := []*audit.Event{}
	for rows.Next() {
		event, err := scanRow(rows)
		if err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}

	return events, nil
}

// Count returns the number of audit events matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	whereClause, args := buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM audit_events"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes audit events matching the query filters and returns the
// number deleted.
func (s *SQLiteStorage) Delete(ctx context.Context, query *audit.Query) (int64, error) {
	whereClause, args := buildWhereClause(query)

	sqlQuery := "DELETE FROM audit_events"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite audit storage closed")
	return nil
}

// sortColumn maps a query sort key to a column, defaulting to timestamp.
// Only known columns are accepted; the sort key is never interpolated raw.
func sortColumn(sortBy string) string {
	switch sortBy {
	case "username", "action", "timestamp":
		return sortBy
	}
	return "timestamp"
}

func sortOrder(order string) string {
	if order == "asc" {
		return "ASC"
	}
	return "DESC"
}

// buildWhereClause builds a SQL WHERE clause from query filters.
// Returns the clause (without the WHERE keyword) and the query arguments.
func buildWhereClause(query *audit.Query) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if query.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *query.StartTime)
	}
	if query.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *query.EndTime)
	}
	if query.Username != "" {
		conditions = append(conditions, "username = ?")
		args = append(args, query.Username)
	}
	if query.Organization != "" {
		conditions = append(conditions, "organization = ?")
		args = append(args, query.Organization)
	}
	if query.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, query.Action)
	}
	if query.ResourceType != "" {
		conditions = append(conditions, "resource_type = ?")
		args = append(args, query.ResourceType)
	}
	if query.ResourceID != "" {
		conditions = append(conditions, "resource_id = ?")
		args = append(args, query.ResourceID)
	}
	if query.FieldName != "" {
		conditions = append(conditions, "field_name = ?")
		args = append(args, query.FieldName)
	}
	if query.WasAllowed != nil {
		conditions = append(conditions, "was_allowed = ?")
		args = append(args, *query.WasAllowed)
	}

	whereClause := ""
	for i, condition := range conditions {
		if i > 0 {
			whereClause += " AND "
		}
		whereClause += condition
	}
	return whereClause, args
}

// scanRow scans a database row into an audit Event.
func scanRow(row *sql.Rows) (*audit.Event, error) {
	var event audit.Event
	var clearance, classificationRequired string
	var compartments, details string
	var denialReason sql.NullString

	err := row.Scan(
		&event.ID, &event.Timestamp,
		&event.Username, &event.Organization, &clearance,
		&event.Action, &event.ResourceType, &event.ResourceID, &event.RecordTitle, &event.FieldName,
		&classificationRequired, &compartments,
		&event.WasAllowed, &denialReason,
		&event.OldValue, &event.NewValue,
		&event.IPAddress, &event.UserAgent, &event.RequestPath, &event.RequestMethod, &event.SessionID,
		&details,
	)
	if err != nil {
		return nil, err
	}

	event.UserClearance = classification.Level(clearance)
	event.ClassificationRequired = classification.Level(classificationRequired)
	if denialReason.Valid {
		event.DenialReason = denialReason.String
	}
	if compartments != "" {
		json.Unmarshal([]byte(compartments), &event.CompartmentsRequired)
	}
	if details != "" {
		json.Unmarshal([]byte(details), &event.Details)
	}

	return &event, nil
}
