// Package sink persists JobResults and acknowledges their jobs.
//
// A result is validated against the versioned schema, stored idempotently
// by job id, pushed to the configured publishers, and only then acked on
// the job source. Retryable failures are nacked with the policy's delay;
// permanent failures are stored as failure records, announced via ntfy and
// acked dead. If storing fails nothing is acked, so the lease lapses and
// the job is redelivered.
//
// Stores: one JSON file per job (plus .srt for transcripts) guarded by a
// file lock, a results table in the SQLite queue database, or PostgreSQL.
// Publishers: Kafka and MQTT, both best-effort.
package sink
