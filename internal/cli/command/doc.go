// Package command provides CLI command definitions for onboard-cli.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: Root command, global flags, storage and output helpers
//   - snapshot.go: Snapshot subcommand group (list, show, save, clear)
//   - watch.go: Change stream for one session
//   - server.go: Commands against a running onboard-server
//   - version.go: Build information
//
// Snapshot and watch commands open the storage backend directly. The
// badger engine holds an exclusive directory lock, so they cannot share a
// badger data directory with a running server; use the file engine or the
// server commands in that case.
package command
