// Package mesh is the device access layer for the mesh-radio companion
// device.
//
// The companion device is a single shared resource: it holds one radio and
// one serial/BLE/TCP link, and concurrent conversations on that link corrupt
// each other. Everything that talks to the device goes through this package:
//
//   - Gate serialises device access (at most one holder at a time).
//   - Connector/Conn abstract the transport and frame protocol, selected by
//     driver name the way database/sql selects drivers.
//   - Session layers typed operations with per-operation timeouts on a Conn.
//   - SlotCache keeps a TTL'd snapshot of the channel table so read paths
//     avoid a device round trip.
//   - ChannelService implements channel create/delete/list on top of all of
//     the above.
package mesh
