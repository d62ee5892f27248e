package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"stratum-hq/bastion/pkg/classification"
	"stratum-hq/bastion/pkg/security"
)

// SQLiteConfig contains configuration for the SQLite records backend.
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
		Path:         "data/records.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements Store using the pure-Go SQLite driver, so the
// records backend needs no cgo.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite records backend. It initializes the
// schema and enables WAL mode if configured.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "store.sqlite")

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, NewStoreError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite records store initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return NewStoreError("sqlite", "enable_wal", err)
		}
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return NewStoreError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return NewStoreError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return NewStoreError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return NewStoreError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStoreError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Create persists a new record with its cells in one transaction.
func (s *SQLiteStore) Create(ctx context.Context, record *security.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStoreError("sqlite", "create", err)
	}
	defer tx.Rollback()

	if err := insertRecord(ctx, tx, record); err != nil {
		return err
	}
	if err := insertCells(ctx, tx, record); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("sqlite", "create", err)
	}
	return nil
}

// Get returns the record with the given id, with cells in stored order.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*security.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, classification,
			ntk_required, ntk_users, ntk_compartments,
			created_by, updated_by, is_deleted, created_at, updated_at
		FROM records WHERE id = ? AND is_deleted = 0
	`, id)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewStoreError("sqlite", "get", err)
	}

	if err := s.loadCells(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// List returns records matching the query in creation order.
func (s *SQLiteStore) List(ctx context.Context, query *ListQuery) ([]*security.Record, error) {
	if query == nil {
		query = &ListQuery{}
	}

	sqlQuery := `
		SELECT id, title, description, classification,
			ntk_required, ntk_users, ntk_compartments,
			created_by, updated_by, is_deleted, created_at, updated_at
		FROM records WHERE is_deleted = 0
	`
	args := []interface{}{}
	if query.CreatedBy != "" {
		sqlQuery += " AND created_by = ?"
		args = append(args, query.CreatedBy)
	}
	sqlQuery += " ORDER BY created_at ASC, id ASC"
	if query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
	}
	if query.Offset > 0 {
		if query.Limit <= 0 {
			sqlQuery += " LIMIT -1"
		}
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, NewStoreError("sqlite", "list", err)
	}
	defer rows.Close()

	records := []*security.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, NewStoreError("sqlite", "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStoreError("sqlite", "list", err)
	}

	for _, record := range records {
		if err := s.loadCells(ctx, record); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Update replaces the record row and rewrites its cells in one transaction.
// CreatedAt and CreatedBy are preserved from the stored row.
func (s *SQLiteStore) Update(ctx context.Context, record *security.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStoreError("sqlite", "update", err)
	}
	defer tx.Rollback()

	ntkRequired, ntkUsers, ntkCompartments := marshalNTK(record.NTK)
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE records SET
			title = ?, description = ?, classification = ?,
			ntk_required = ?, ntk_users = ?, ntk_compartments = ?,
			updated_by = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0
	`,
		record.Title, record.Description, string(record.Classification),
		ntkRequired, ntkUsers, ntkCompartments,
		record.UpdatedBy, updatedAt,
		record.ID,
	)
	if err != nil {
		return NewStoreError("sqlite", "update", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("sqlite", "update", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM cells WHERE record_id = ?", record.ID); err != nil {
		return NewStoreError("sqlite", "update", err)
	}
	if err := insertCells(ctx, tx, record); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("sqlite", "update", err)
	}
	return nil
}

// SoftDelete marks the record deleted; the row and its cells remain.
func (s *SQLiteStore) SoftDelete(ctx context.Context, id, deletedBy string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE records SET is_deleted = 1, updated_by = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0
	`, deletedBy, time.Now().UTC(), id)
	if err != nil {
		return NewStoreError("sqlite", "soft_delete", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("sqlite", "soft_delete", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases resources held by the backend.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return NewStoreError("sqlite", "close", err)
	}
	s.logger.Info("SQLite records store closed")
	return nil
}

func (s *SQLiteStore) loadCells(ctx context.Context, record *security.Record) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, field_name, field_value, classification,
			compartments, created_at, updated_at
		FROM cells WHERE record_id = ? ORDER BY position ASC
	`, record.ID)
	if err != nil {
		return NewStoreError("sqlite", "load_cells", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cell security.Cell
		var level, compartments string
		err := rows.Scan(
			&cell.ID, &cell.RecordID, &cell.FieldName, &cell.FieldValue,
			&level, &compartments, &cell.CreatedAt, &cell.UpdatedAt,
		)
		if err != nil {
			return NewStoreError("sqlite", "scan_cell", err)
		}
		cell.Classification = classification.Level(level)
		if compartments != "" {
			json.Unmarshal([]byte(compartments), &cell.Compartments)
		}
		record.Cells = append(record.Cells, cell)
	}
	if err := rows.Err(); err != nil {
		return NewStoreError("sqlite", "load_cells", err)
	}
	return nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, record *security.Record) error {
	ntkRequired, ntkUsers, ntkCompartments := marshalNTK(record.NTK)
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO records (
			id, title, description, classification,
			ntk_required, ntk_users, ntk_compartments,
			created_by, updated_by, is_deleted, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`,
		record.ID, record.Title, record.Description, string(record.Classification),
		ntkRequired, ntkUsers, ntkCompartments,
		record.CreatedBy, record.UpdatedBy, createdAt, updatedAt,
	)
	if err != nil {
		return NewStoreError("sqlite", "insert_record", err)
	}
	return nil
}

func insertCells(ctx context.Context, tx *sql.Tx, record *security.Record) error {
	for i, cell := range record.Cells {
		compartments := marshalSet(cell.Compartments)
		createdAt := cell.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		updatedAt := cell.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO cells (
				id, record_id, field_name, field_value, classification,
				compartments, position, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			cell.ID, record.ID, cell.FieldName, cell.FieldValue,
			string(cell.Classification), compartments, i,
			createdAt, updatedAt,
		)
		if err != nil {
			return NewStoreError("sqlite", "insert_cell", err)
		}
	}
	return nil
}

func marshalNTK(ntk *security.NeedToKnowGrant) (bool, string, string) {
	if ntk == nil {
		return false, "[]", "[]"
	}
	return ntk.Required, marshalSet(ntk.Users), marshalSet(ntk.Compartments)
}

// marshalSet encodes a string set as JSON, with nil encoding to the empty
// array so round-trips stay stable.
func marshalSet(set []string) string {
	if set == nil {
		return "[]"
	}
	data, _ := json.Marshal(set)
	return string(data)
}

// scanner abstracts sql.Row and sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*security.Record, error) {
	var record security.Record
	var level string
	var ntkRequired bool
	var ntkUsers, ntkCompartments string

	err := row.Scan(
		&record.ID, &record.Title, &record.Description, &level,
		&ntkRequired, &ntkUsers, &ntkCompartments,
		&record.CreatedBy, &record.UpdatedBy, &record.IsDeleted,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Classification = classification.Level(level)
	if ntkRequired || ntkUsers != "[]" || ntkCompartments != "[]" {
		ntk := &security.NeedToKnowGrant{Required: ntkRequired}
		json.Unmarshal([]byte(ntkUsers), &ntk.Users)
		json.Unmarshal([]byte(ntkCompartments), &ntk.Compartments)
		record.NTK = ntk
	}
	return &record, nil
}
