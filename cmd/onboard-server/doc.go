// Package main provides the entry point for onboard-server.
//
// The server persists partially completed onboarding forms per session:
//
//   - HTTP API to save, patch, retry, read and clear session snapshots
//   - Auto-save controllers with save status and pending-data retry
//   - Server-Sent Events stream of snapshot changes
//   - Optional Redis mirror of every save
//
// Usage:
//
//	onboard-server [flags]
//	onboard-server -config /path/to/config.yaml
//
// The server loads configuration, initializes storage and the auto-save
// registry, and serves HTTP until SIGINT/SIGTERM. Pending saves are
// flushed once before the listener closes.
package main
