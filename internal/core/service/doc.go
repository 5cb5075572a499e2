// Package service provides the onboarding session persistence services.
//
// This package contains:
//
//   - Controller: the per-session auto-save state machine
//     (idle, saving, saved, error) with retry of the pending payload
//   - Observer: emits an extracted part of a session snapshot whenever
//     it changes in storage
//   - Registry: owns one Controller per active session and disposes
//     idle ones
//
// Storage and the remote collaborator are injected through the
// SnapshotStore, SnapshotSource and RemoteSaver interfaces so tests can
// substitute doubles.
package service
