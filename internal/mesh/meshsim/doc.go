// Package meshsim is an in-memory companion device driver.
//
// It implements the full mesh.Conn surface against simulated state: a slot
// table, a contact list, a receive queue, and per-contact status reports.
// It backs development deployments (driver "sim") and the package tests
// that exercise the device access layer end to end.
package meshsim
