// Package domain defines the core domain models for onboarding session
// persistence.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - SessionSnapshot: the persisted {data, savedAt} blob for one session
//   - SaveStatus: the auto-save lifecycle (idle, saving, saved, error)
//   - OnboardingData: the typed aggregate the onboarding forms fill in
//   - Errors: coded domain errors shared by storage, service and transport
package domain
