// Package handler provides HTTP request handlers for onboard-server.
//
// This package contains handlers for all HTTP endpoints:
//
//   - snapshot.go: Snapshot read, save, patch, retry, clear
//   - events.go: Server-Sent Events stream of observed changes
//   - health.go: Health and readiness checks
//
// All handlers follow a consistent pattern:
//
//   - Parse and validate request
//   - Call the auto-save registry or snapshot store
//   - Format and return response
//   - Handle errors with appropriate HTTP status codes
package handler
