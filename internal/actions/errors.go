// internal/actions/errors.go
package actions

// ErrorCode is a string type used for structured error reporting from action
// executors. Using a custom type ensures only predefined constants reach the
// places that expect one.
type ErrorCode string

const (
	// -- General execution errors --
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION_TYPE"

	// -- Browser/DOM errors --
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeTimeoutError    ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNavigationError ErrorCode = "NAVIGATION_ERROR"

	// -- Collaborator errors --
	ErrCodeTransportFailure      ErrorCode = "TRANSPORT_FAILURE"
	ErrCodeExtractionUnsupported ErrorCode = "EXTRACTION_UNSUPPORTED"
)
