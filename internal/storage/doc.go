// Package storage assembles the persistence stack for onboarding sessions.
//
// Architecture:
//
//   - kv: flat key-value backends (memory, file, badger) with quota
//     accounting and change notification
//   - snapshot: the local snapshot store mapping session ids to
//     {data, savedAt} blobs, optionally sealed with an adaptive cipher
//   - remote: the optional remote persistence collaborator (Redis)
//
// Engine wires the first two together from configuration and owns the
// backend lifecycle.
package storage
