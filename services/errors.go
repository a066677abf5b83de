package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a client failure
type ErrorType string

const (
	ErrorTypeConfig             ErrorType = "config"
	ErrorTypeCredential         ErrorType = "credential"
	ErrorTypeLimitExceeded      ErrorType = "limit_exceeded"
	ErrorTypeProvider           ErrorType = "provider"
	ErrorTypeAllProvidersFailed ErrorType = "all_providers_failed"
	ErrorTypeInternal           ErrorType = "internal"
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

// Is matches any DomainError of the same type, so the sentinels below work
// with errors.Is regardless of message.
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

var (
	ErrConfig             = NewDomainError(ErrorTypeConfig, "invalid configuration", nil)
	ErrCredential         = NewDomainError(ErrorTypeCredential, "credential unavailable", nil)
	ErrLimitExceeded      = NewDomainError(ErrorTypeLimitExceeded, "usage limit exceeded", nil)
	ErrProvider           = NewDomainError(ErrorTypeProvider, "provider error", nil)
	ErrAllProvidersFailed = NewDomainError(ErrorTypeAllProvidersFailed, "all providers failed", nil)
	ErrInternal           = NewDomainError(ErrorTypeInternal, "internal error", nil)
)

// Limit names carried in the "limit" detail of a limit_exceeded error.
const (
	LimitRequestsPerDay = "requests_per_day"
	LimitMonthlyCost    = "monthly_cost"
)

// NewConfigError creates a configuration error
func NewConfigError(format string, args ...interface{}) *DomainError {
	return NewDomainError(ErrorTypeConfig, fmt.Sprintf(format, args...), nil)
}

// NewCredentialError creates a credential error for the given provider
func NewCredentialError(provider, message string) *DomainError {
	return NewDomainError(ErrorTypeCredential, message, nil).WithDetail("provider", provider)
}

// NewLimitExceededError creates a limit error carrying the current and maximum values
func NewLimitExceededError(limit string, current, max interface{}, message string) *DomainError {
	return NewDomainError(ErrorTypeLimitExceeded, message, nil).
		WithDetail("limit", limit).
		WithDetail("current", current).
		WithDetail("max", max)
}

// NewAllProvidersFailedError wraps the last provider failure of a fallback chain
func NewAllProvidersFailedError(tried []string, last error) *DomainError {
	return NewDomainError(ErrorTypeAllProvidersFailed, fmt.Sprintf("tried %v", tried), last).
		WithDetail("providers", tried)
}

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

// IsCredentialError checks if an error is a credential error
func IsCredentialError(err error) bool {
	return hasType(err, ErrorTypeCredential)
}

// IsLimitExceededError checks if an error is a daily-request or monthly-cost stop
func IsLimitExceededError(err error) bool {
	return hasType(err, ErrorTypeLimitExceeded)
}

// IsProviderError checks if an error is, or wraps, a provider failure.
// Provider adapters match ErrProvider through their own Is method.
func IsProviderError(err error) bool {
	return errors.Is(err, ErrProvider)
}

// IsAllProvidersFailedError checks if an error is a terminal fallback failure
func IsAllProvidersFailedError(err error) bool {
	return hasType(err, ErrorTypeAllProvidersFailed)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// IsOperatorError reports whether err needs operator attention rather than a retry.
func IsOperatorError(err error) bool {
	return IsConfigError(err) || IsCredentialError(err)
}

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

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(message string, err error) error {
	return NewDomainError(ErrorTypeConfig, message, err)
}
