// Package api provides the HTTP REST API and WebSocket endpoint for
// meshgate.
//
// It exposes channel management, message send and history, the monitored
// repeater registry, telemetry queries, and a WebSocket stream of new
// messages to dashboards and scripts.
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
