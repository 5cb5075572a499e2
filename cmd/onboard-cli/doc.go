// Package main provides the entry point for onboard-cli.
//
// onboard-cli inspects and edits onboarding session snapshots directly in
// a storage backend, streams snapshot changes, and queries a running
// onboard-server for auto-save state.
package main
