// Package metrics writes save and reconciliation timings to InfluxDB.
//
// Measurements:
//
//	document_save  tags: document_id, status   fields: duration_ms, panels
//	reconcile      tags: status                fields: duration_ms, adopted, preloaded, pushed, failed
//
// Writes go through the non-blocking batched write API; errors are
// reported asynchronously to the logger.
package metrics
