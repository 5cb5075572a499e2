// Package snapshot implements the local snapshot store.
//
// Each onboarding session has at most one snapshot, stored under
// "onboarding_session_{sessionId}" as
//
//	{"data": <opaque JSON>, "savedAt": "<ISO-8601>"}
//
// Writes fully replace the previous value; merging is the caller's job.
// Reads never fail on a missing or corrupted value: both are reported as
// "not found", and corruption is logged. When a cipher is configured the
// JSON blob is sealed with it before it reaches the backend, using the
// storage key as additional data.
package snapshot
