// Package api provides the HTTP command surface and WebSocket event stream
// for the mfersafe supervisor.
//
// Routes (all under /api/v1):
//
//	GET  /health          component health, no auth
//	GET  /node/args       installed node config
//	POST /node/restart    restart with a new config, returns {success, error}
//	GET  /node/status     supervisor and sink stats
//	GET  /node/logs       recent emitted lines
//	GET  /node/restarts   restart history
//	POST /auth/ws-ticket  single-use WebSocket ticket
//	GET  /ws              live "mfernode-event" stream
//
// When security.jwt.secret is set every route except /health requires a
// bearer token; /ws takes a ticket instead so the token never lands in a URL.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
