// Package logger provides structured logging for the onboarding service.
//
//   - logger.go: log/slog handler construction and dynamic level
//   - context.go: context-carried loggers with request ids
//   - redact.go: redaction of secrets and patient data
//
// Onboarding payloads carry PHI (dates of birth, diagnoses, insurance
// identifiers), so the handler redacts attributes by key before they are
// written, whatever the log level.
package logger
