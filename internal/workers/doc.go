// Package workers holds the background loops that keep meshgate current:
// the message drainer, which empties the companion device receive queue
// into the message log, and the repeater poller, which samples battery
// telemetry from monitored repeaters.
//
// Both loops follow the same discipline: acquire the device gate, open a
// session, do the cycle's work, disconnect, release, sleep. Holding the
// gate only for the working part of each cycle keeps API requests from
// queueing behind an idle worker. Failures back off exponentially and a
// successful cycle resets the backoff.
package workers
