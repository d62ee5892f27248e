package store

// SchemaVersion is the current records schema version.
const SchemaVersion = 1

// Schema creates the records and cells tables.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL,
	ntk_required INTEGER NOT NULL DEFAULT 0,
	ntk_users TEXT NOT NULL DEFAULT '[]',
	ntk_compartments TEXT NOT NULL DEFAULT '[]',
	created_by TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cells (
	id TEXT PRIMARY KEY,
	record_id TEXT NOT NULL REFERENCES records(id),
	field_name TEXT NOT NULL,
	field_value TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL,
	compartments TEXT NOT NULL DEFAULT '[]',
	position INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS records_schema_version (
	version INTEGER PRIMARY KEY
);

CREATE INDEX IF NOT EXISTS idx_records_created_by ON records(created_by);
CREATE INDEX IF NOT EXISTS idx_records_is_deleted ON records(is_deleted);
CREATE INDEX IF NOT EXISTS idx_cells_record_id ON cells(record_id);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `INSERT OR IGNORE INTO records_schema_version (version) VALUES (?);`

// GetSchemaVersion reads the recorded schema version.
const GetSchemaVersion = `SELECT version FROM records_schema_version LIMIT 1;`
