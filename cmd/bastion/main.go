// Bastion is a multi-level security access-control engine for classified
// records.
//
// It serves record data behind classification and need-to-know enforcement,
// providing:
//   - Record and cell-level access decisions with redaction
//   - Search-time security filtering and field masking
//   - A synchronous, tamper-evident audit trail
//   - Operator-editable sharing policy with hot reload
//
// Usage:
//
//	# Start the server with default configuration
//	bastion run
//
//	# Start with a custom configuration file
//	bastion run --config /path/to/config.yaml
//
//	# Show version information
//	bastion version
//
//	# Validate a sharing policy file
//	bastion policy validate --file sharing.yaml
//
//	# Query the audit trail
//	bastion audit query --time-range "2026-08-29T00:00:00Z/2026-08-30T00:00:00Z"
//
//	# Export audit events for compliance handoff
//	bastion audit export --format csv --output events.csv
package main

func main() {
	Execute()
}
