// Package httpserver provides the HTTP/HTTPS server for onboard-server.
//
// This package implements the external API using stdlib net/http:
//
//   - Snapshot endpoints: /sessions, /sessions/{id}/snapshot, /sessions/{id}/status
//   - Change stream: /sessions/{id}/events (Server-Sent Events)
//   - Health endpoints: /health, /ready, /metrics
//
// Middleware chain: Recover, RequestID, Logging, RateLimit, CORS.
package httpserver
