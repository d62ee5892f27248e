package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the audit database schema.
const Schema = `
-- Audit events table
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL,

    -- Principal snapshot
    username TEXT NOT NULL,
    organization TEXT NOT NULL,
    user_clearance TEXT,

    -- Attempted operation
    action TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    resource_id TEXT,
    record_title TEXT,
    field_name TEXT,

    -- Resource requirements
    classification_required TEXT,
    compartments_required TEXT,

    -- Outcome
    was_allowed BOOLEAN NOT NULL,
    denial_reason TEXT,

    -- Mutation detail
    old_value TEXT,
    new_value TEXT,

    -- Request provenance
    ip_address TEXT,
    user_agent TEXT,
    request_path TEXT,
    request_method TEXT,
    session_id TEXT,

    details TEXT
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_username ON audit_events(username);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_events(action);
CREATE INDEX IF NOT EXISTS idx_audit_resource_id ON audit_events(resource_id);
CREATE INDEX IF NOT EXISTS idx_audit_was_allowed ON audit_events(was_allowed);
CREATE INDEX IF NOT EXISTS idx_audit_organization ON audit_events(organization);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
