// Package influxdb mirrors repeater telemetry into InfluxDB v2.
//
// SQLite remains the source of truth; the mirror is best effort. Writes go
// through the non-blocking batched write API, so a slow or unreachable
// InfluxDB never stalls the repeater poller.
package influxdb
