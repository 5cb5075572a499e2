// Package kv provides the key-value backends behind the snapshot store.
//
// A Backend plays the role browser local storage plays for the onboarding
// web flow: a flat string-keyed namespace of byte values with an optional
// capacity quota. Three engines are available:
//
//   - memory: process-local map, used by tests and ephemeral deployments
//   - file:   one file per key in a directory, changes by other processes
//     are observed through fsnotify
//   - badger: embedded LSM store, changes are observed through
//     badger's prefix subscriptions
//
// Every engine also implements Watcher so the sync observer can react to
// writes made by other writers instead of only polling.
package kv
