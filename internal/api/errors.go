package api

import (
	"errors"
	"fmt"
)

// Error codes. IntegrationError is the single domain error kind of the
// runtime; the crypto layer surfaces AuthError, which the vault wraps into
// an IntegrationError with the cause preserved.
const (
	CodeIntegrationError = "INTEGRATION_ERROR"
	CodeAuthError        = "AUTH_ERROR"
)

// IntegrationError sub-codes.
const (
	SubCodeConnection      = "CONNECTION"
	SubCodeAuth            = "AUTH"
	SubCodeOperation       = "OPERATION"
	SubCodeValidation      = "VALIDATION"
	SubCodeStateTransition = "STATE_TRANSITION"
)

// IntegrationError is the domain error returned across module boundaries.
type IntegrationError struct {
	Message string
	SubCode string
	Cause   error
}

func (e *IntegrationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", CodeIntegrationError, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", CodeIntegrationError, e.Message)
}

func (e *IntegrationError) Unwrap() error { return e.Cause }

// Code returns the fixed error code for the domain error kind.
func (e *IntegrationError) Code() string { return CodeIntegrationError }

// NewIntegrationError creates a domain error with the given sub-code.
func NewIntegrationError(subCode, message string, cause error) *IntegrationError {
	return &IntegrationError{Message: message, SubCode: subCode, Cause: cause}
}

// NewValidationError creates a VALIDATION sub-coded domain error. These are
// returned without side effect.
func NewValidationError(format string, args ...interface{}) *IntegrationError {
	return &IntegrationError{Message: fmt.Sprintf(format, args...), SubCode: SubCodeValidation}
}

// NewConnectionError creates a CONNECTION sub-coded domain error.
func NewConnectionError(message string, cause error) *IntegrationError {
	return &IntegrationError{Message: message, SubCode: SubCodeConnection, Cause: cause}
}

// NewOperationError creates an OPERATION sub-coded domain error.
func NewOperationError(message string, cause error) *IntegrationError {
	return &IntegrationError{Message: message, SubCode: SubCodeOperation, Cause: cause}
}

// NewAuthIntegrationError creates an AUTH sub-coded domain error.
func NewAuthIntegrationError(message string, cause error) *IntegrationError {
	return &IntegrationError{Message: message, SubCode: SubCodeAuth, Cause: cause}
}

// NewStateTransitionError reports a rejected lifecycle transition, naming
// the integration, its current state, and the requested state.
func NewStateTransitionError(integrationID string, from, to IntegrationState) *IntegrationError {
	return &IntegrationError{
		Message: fmt.Sprintf("integration %s cannot transition from %s to %s", integrationID, from, to),
		SubCode: SubCodeStateTransition,
	}
}

// IsIntegrationError checks whether err is or wraps an IntegrationError.
func IsIntegrationError(err error) bool {
	var ie *IntegrationError
	return errors.As(err, &ie)
}

// AuthError is the crypto layer's own error kind: key derivation,
// encryption, or authentication-tag failures.
type AuthError struct {
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", CodeAuthError, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", CodeAuthError, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// NewAuthError creates a crypto-layer error.
func NewAuthError(message string, cause error) *AuthError {
	return &AuthError{Message: message, Cause: cause}
}

// IsAuthError checks whether err is or wraps an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// NotFoundError reports a missing resource (integration, tool, record).
type NotFoundError struct {
	ResourceType string
	ResourceName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// IsNotFound checks whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// NewIntegrationNotFoundError creates an integration not found error.
func NewIntegrationNotFoundError(id string) *NotFoundError {
	return &NotFoundError{ResourceType: "integration", ResourceName: id}
}

// NewToolNotFoundError creates a tool not found error.
func NewToolNotFoundError(name string) *NotFoundError {
	return &NotFoundError{ResourceType: "tool", ResourceName: name}
}

// NewCredentialNotFoundError creates a credential not found error.
func NewCredentialNotFoundError(id string) *NotFoundError {
	return &NotFoundError{ResourceType: "credential", ResourceName: id}
}

// Common sentinel errors for facade pre-conditions. Each execute failure
// mode is distinct and message-distinguishable.
var (
	// ErrServiceNotStarted indicates the integration service has not been started.
	ErrServiceNotStarted = errors.New("integration service not started")

	// ErrIntegrationDisabled indicates the integration is registered but disabled.
	ErrIntegrationDisabled = errors.New("integration is disabled")

	// ErrIntegrationNotActive indicates the integration is enabled but not in the active state.
	ErrIntegrationNotActive = errors.New("integration is not active")

	// ErrIntegrationServiceNotRegistered indicates the integration service
	// handler is not registered with the locator.
	ErrIntegrationServiceNotRegistered = errors.New("integration service handler not registered")

	// ErrToolRegistryNotRegistered indicates the tool registry handler is
	// not registered with the locator.
	ErrToolRegistryNotRegistered = errors.New("tool registry handler not registered")

	// ErrWorkspaceNotRegistered indicates the workspace handler is not
	// registered with the locator.
	ErrWorkspaceNotRegistered = errors.New("workspace handler not registered")
)
