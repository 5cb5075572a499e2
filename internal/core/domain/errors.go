// Package domain defines the core domain models for onboarding session persistence.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form ONB-{AREA}-{NNNN}; the last four digits start with the
// HTTP status family the error maps to.
type DomainError struct {
	Code    string // Error code (e.g., "ONB-STOR-5070")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
// The cause's message becomes the details when none are set, so the raw
// storage message stays visible to callers.
func (e *DomainError) WithCause(cause error) *DomainError {
	details := e.Details
	if details == "" && cause != nil {
		details = cause.Error()
	}
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Storage Errors (STOR)
// ============================================================================

var (
	// ErrStorageQuotaExceeded indicates the backend rejected a write for capacity.
	// Its message must contain "quota"; clients branch on it.
	ErrStorageQuotaExceeded = NewDomainError("ONB-STOR-5070", "storage quota exceeded")

	// ErrStorageUnavailable indicates any other storage-layer failure.
	ErrStorageUnavailable = NewDomainError("ONB-STOR-5030", "storage unavailable")

	// ErrSerializationFailure indicates the payload could not be encoded as JSON.
	ErrSerializationFailure = NewDomainError("ONB-STOR-4000", "payload is not serializable")
)

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrInvalidSessionID indicates the session id is empty or malformed.
	ErrInvalidSessionID = NewDomainError("ONB-SESS-4000", "invalid session id")

	// ErrSnapshotNotFound indicates no snapshot is stored for the session.
	ErrSnapshotNotFound = NewDomainError("ONB-SESS-4040", "snapshot not found")

	// ErrUnknownStep indicates an onboarding step name that is not recognised.
	ErrUnknownStep = NewDomainError("ONB-SESS-4001", "unknown onboarding step")
)

// ============================================================================
// Remote Errors (REMT)
// ============================================================================

var (
	// ErrRemoteSaveFailed indicates the remote persistence collaborator failed.
	ErrRemoteSaveFailed = NewDomainError("ONB-REMT-5020", "remote save failed")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("ONB-SYS-5000", "internal server error")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("ONB-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("ONB-SYS-4290", "too many requests")
)

// IsQuotaExceeded reports whether err is a capacity failure.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrStorageQuotaExceeded)
}
