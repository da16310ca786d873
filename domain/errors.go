package domain

import "fmt"

// CredentialError is a typed application error for user-initiated auth
// actions (login, restore). Unlike background sync failures, which are
// retried silently, these surface synchronously to the caller.
type CredentialError struct {
	Reason string
}

// Error implements the error interface
func (e *CredentialError) Error() string {
	return fmt.Sprintf("invalid credentials: %s", e.Reason)
}

// NewCredentialError creates a CredentialError with the given reason
func NewCredentialError(reason string) *CredentialError {
	return &CredentialError{Reason: reason}
}
