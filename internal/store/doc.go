// Package store provides the SQLite-backed storage collaborator of the
// automation engine.
//
// The store keeps:
//   - Collections and link types, with attribute usage and entity counters
//   - Documents, grouped by collection, optionally forming a parent tree
//   - Link instances joining two documents
//   - Named sequences for getSequenceNumber
//
// # Consistency
//
// Every method is individually atomic. There is no transaction spanning
// several calls: the commit pipeline applies an invocation's operations in a
// fixed order and nothing already applied is rolled back when a later step
// fails. Counter write-backs follow last-writer-wins.
//
// # Deterministic Query Results
//
// All list and search queries order by id ASC COLLATE BINARY. With UUIDv7
// ids that is creation order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
