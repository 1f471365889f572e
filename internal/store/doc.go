// Package store provides the SQLite repositories for meshgate: the message
// log, the monitored-repeater registry, and sampled repeater telemetry.
//
// Messages and telemetry are append-only. Repeaters are append-only per
// logical entity: every mutation inserts a new version row and reads
// resolve the highest version per id, so configuration history is never
// lost. Timestamps are stored as RFC 3339 UTC text.
package store
