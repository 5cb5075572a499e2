// Package confloader loads layered configuration with koanf.
//
// Priority (highest to lowest):
//
//  1. Explicit overrides (LoadMap, e.g. from flags)
//  2. Environment variables (ONBOARD_ prefix by default)
//  3. The YAML configuration file
//  4. Values already present in the target struct
//
// Environment names are matched against the target's koanf keys, so
// ONBOARD_STORAGE_QUOTA_BYTES resolves to storage.quota_bytes rather than
// storage.quota.bytes.
//
// Watcher reports edits to the configuration file so callers can
// re-apply settings that are safe to change at runtime.
package confloader
