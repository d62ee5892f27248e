// Package telemetry provides observability for Bastion.
//
// # Components
//
//   - logging: structured slog setup from configuration
//   - metrics: Prometheus metrics for access decisions, audit writes,
//     field masking and searches
//   - health: liveness and readiness endpoints
//
// # Usage
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging, nil)
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordDecision("record", false, "INSUFFICIENT_CLEARANCE")
//
// Components obtain their loggers from the installed default:
//
//	logger := slog.Default().With("component", "audit.recorder")
package telemetry
