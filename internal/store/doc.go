// Package store provides SQLite-backed persistence for entity snapshots and
// the engine's event log.
//
// The store keeps two append-only tables:
//   - snapshots: exported entities, content-addressed by ir.SnapshotHash
//   - events: every event a run emitted, keyed by (run_id, seq)
//
// # Idempotency
//
// SaveSnapshot skips the insert when the entity's latest snapshot already has
// the same hash, so saving an unchanged entity twice stores one row.
// AppendEvent ignores a second write of the same (run_id, seq).
//
// # Ordering
//
// Reads order by the autoincrement id, which follows insertion order. No
// query orders by wall time.
//
// # Schema Versions
//
// Open runs every numbered migration newer than the file's user_version and
// refuses files written by a newer build.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The settings are DSN parameters, so every pooled connection gets them.
//
// A Recorder subscribes to the bus wildcard and appends every event the
// engine emits.
package store
