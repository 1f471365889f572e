// Package database provides SQLite connection management and schema
// migrations for meshgate.
//
// The database stores everything the companion device does not: the
// inbound/outbound message log, the monitored-repeater registry, and
// sampled repeater telemetry. SQLite is opened with WAL mode and a busy
// timeout, limited to a single connection to match its single-writer
// model.
//
// Migrations are embedded .sql files registered by the migrations package
// and applied in version order, each in its own transaction.
package database
