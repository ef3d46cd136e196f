// Package errors provides standardized error types for the domain layer.
// These errors provide consistent error handling across all services
// and enable proper error categorization for HTTP responses.
package errors

import (
	"errors"
	"fmt"
)

// Standard error categories
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input was provided
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request is not authorized
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the request is forbidden
	ErrForbidden = errors.New("forbidden")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrConflict indicates a conflict with the current state
	ErrConflict = errors.New("conflict")

	// ErrBusinessRule indicates a domain precondition was not met
	ErrBusinessRule = errors.New("business rule violation")

	// ErrInvariant indicates the ledger reached a state its invariants forbid.
	// Treated as fatal severity everywhere it surfaces.
	ErrInvariant = errors.New("invariant violation")

	// ErrProviderUnavailable indicates an upstream BaaS provider failure
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderRejected indicates the provider refused the operation
	ErrProviderRejected = errors.New("provider rejected")

	// ErrInvalidSignature indicates a webhook signature or timestamp check failed
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrRateLimit indicates rate limit exceeded
	ErrRateLimit = errors.New("rate limit exceeded")
)

// DomainError represents a domain-specific error with additional context
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Details   map[string]interface{}
	Retryable bool
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// WithDetails adds details to the error
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	e.Details = details
	return e
}

// WithRetryable marks the error as retryable
func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(err error, code, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Code:    code,
		Message: message,
	}
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    fmt.Sprintf("%s_NOT_FOUND", resource),
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// AlreadyExistsError creates an already exists error
func AlreadyExistsError(resource string) *DomainError {
	return &DomainError{
		Err:     ErrAlreadyExists,
		Code:    fmt.Sprintf("%s_ALREADY_EXISTS", resource),
		Message: fmt.Sprintf("%s already exists", resource),
	}
}

// ValidationError creates a validation error
func ValidationError(field, message string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidInput,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// UnauthorizedError creates an unauthorized error
func UnauthorizedError(message string) *DomainError {
	return &DomainError{
		Err:     ErrUnauthorized,
		Code:    "UNAUTHORIZED",
		Message: message,
	}
}

// ForbiddenError creates a forbidden error
func ForbiddenError(message string) *DomainError {
	return &DomainError{
		Err:     ErrForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

// InternalError creates an internal error
func InternalError(message string, err error) *DomainError {
	de := &DomainError{
		Err:     ErrInternal,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if err != nil {
		de.Details = map[string]interface{}{
			"cause": err.Error(),
		}
	}
	return de
}

// BusinessRuleError creates a business rule error with a stable code
func BusinessRuleError(code, message string) *DomainError {
	return &DomainError{
		Err:     ErrBusinessRule,
		Code:    code,
		Message: message,
	}
}

// InvariantError creates an invariant violation error
func InvariantError(message string, details map[string]interface{}) *DomainError {
	return &DomainError{
		Err:     ErrInvariant,
		Code:    "INVARIANT_VIOLATION",
		Message: message,
		Details: details,
	}
}

// ProviderUnavailableError creates a retryable upstream failure error
func ProviderUnavailableError(provider string, err error) *DomainError {
	de := &DomainError{
		Err:       ErrProviderUnavailable,
		Code:      "PROVIDER_UNAVAILABLE",
		Message:   fmt.Sprintf("%s is temporarily unavailable", provider),
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{
			"cause": err.Error(),
		}
	}
	return de
}

// ProviderRejectedError creates a non-retryable provider refusal error
func ProviderRejectedError(provider, reason string) *DomainError {
	return &DomainError{
		Err:     ErrProviderRejected,
		Code:    "PROVIDER_REJECTED",
		Message: fmt.Sprintf("%s rejected the operation: %s", provider, reason),
	}
}

// Ledger and card-program errors with stable codes
var (
	ErrInsufficientEquity = &DomainError{
		Err:     ErrBusinessRule,
		Code:    "INSUFFICIENT_EQUITY",
		Message: "member equity is insufficient for this operation",
	}

	ErrInsufficientPendingBalance = &DomainError{
		Err:     ErrInvariant,
		Code:    "INSUFFICIENT_PENDING_BALANCE",
		Message: "pending withdrawal balance is insufficient for this operation",
	}

	ErrUserNotMember = &DomainError{
		Err:     ErrForbidden,
		Code:    "USER_NOT_MEMBER",
		Message: "user is not a member of this wallet",
	}

	ErrMissingTransactionID = &DomainError{
		Err:     ErrInvalidInput,
		Code:    "MISSING_TRANSACTION_ID",
		Message: "transaction ID is required",
	}

	ErrNoPostings = &DomainError{
		Err:     ErrInvalidInput,
		Code:    "NO_POSTINGS",
		Message: "a transaction requires at least one posting",
	}

	ErrCrossCardPosting = &DomainError{
		Err:     ErrInvalidInput,
		Code:    "CROSS_CARD_POSTING",
		Message: "all accounts in a transaction must belong to the same card",
	}

	ErrCannotCancelWithdrawal = &DomainError{
		Err:     ErrConflict,
		Code:    "CANNOT_CANCEL_PROCESSING_WITHDRAWAL",
		Message: "withdrawal has already been handed to the provider",
	}

	ErrFundingRouteNotFound = &DomainError{
		Err:     ErrNotFound,
		Code:    "FUNDING_ROUTE_NOT_FOUND",
		Message: "no funding route matches this deposit",
	}
)

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsInvalidInput checks if an error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsForbidden checks if an error is a forbidden error
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsBusinessRule checks if an error is a business rule error
func IsBusinessRule(err error) bool {
	return errors.Is(err, ErrBusinessRule)
}

// IsInvariant checks if an error is an invariant violation
func IsInvariant(err error) bool {
	return errors.Is(err, ErrInvariant)
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "UNKNOWN_ERROR"
}

// GetErrorDetails extracts details from a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
