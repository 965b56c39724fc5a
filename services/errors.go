package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a lifecycle failure
type ErrorType string

const (
	ErrorTypeAlreadyExists      ErrorType = "already_exists"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeNameConflict       ErrorType = "name_conflict"
	ErrorTypeForbidden          ErrorType = "forbidden"
	ErrorTypeInvalidCredentials ErrorType = "invalid_credentials"
	ErrorTypeUnauthenticated    ErrorType = "unauthenticated"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeRateLimit          ErrorType = "rate_limit"
	ErrorTypeStorage            ErrorType = "storage"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError of the same type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels. Compare with errors.Is; a fresh error carrying details should be built
// with NewDomainError so the shared values are never mutated.
var (
	ErrOrganizationExists   = NewDomainError(ErrorTypeAlreadyExists, "organization already exists", nil)
	ErrAdminEmailInUse      = NewDomainError(ErrorTypeAlreadyExists, "admin email already belongs to another organization", nil)
	ErrOrganizationNotFound = NewDomainError(ErrorTypeNotFound, "organization not found", nil)
	ErrNameConflict         = NewDomainError(ErrorTypeNameConflict, "new organization name already taken", nil)
	ErrForbidden            = NewDomainError(ErrorTypeForbidden, "admin does not own this organization", nil)
	ErrInvalidCredentials   = NewDomainError(ErrorTypeInvalidCredentials, "invalid email or password", nil)
	ErrUnauthenticated      = NewDomainError(ErrorTypeUnauthenticated, "invalid or missing token", nil)
	ErrInvalidInput         = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyNormalizedName  = NewDomainError(ErrorTypeValidation, "organization name has no usable characters", nil)
	ErrTooManyAttempts      = NewDomainError(ErrorTypeRateLimit, "too many login attempts", nil)
	ErrStorage              = NewDomainError(ErrorTypeStorage, "storage failure", nil)
)

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsAlreadyExistsError checks if an error is an already-exists error
func IsAlreadyExistsError(err error) bool { return hasType(err, ErrorTypeAlreadyExists) }

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsNameConflictError checks if an error is a rename target conflict
func IsNameConflictError(err error) bool { return hasType(err, ErrorTypeNameConflict) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsInvalidCredentialsError checks if an error is a failed login
func IsInvalidCredentialsError(err error) bool { return hasType(err, ErrorTypeInvalidCredentials) }

// IsUnauthenticatedError checks if an error is a token failure
func IsUnauthenticatedError(err error) bool { return hasType(err, ErrorTypeUnauthenticated) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool { return hasType(err, ErrorTypeRateLimit) }

// IsStorageError checks if an error is an infrastructure failure
func IsStorageError(err error) bool { return hasType(err, ErrorTypeStorage) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapStorage wraps a driver failure as a StorageError
func WrapStorage(message string, err error) error {
	return NewDomainError(ErrorTypeStorage, message, err)
}
