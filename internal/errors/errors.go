package errors

import (
	"fmt"
	"strings"
)

// Kind is the closed set of error categories surfaced by the system.
type Kind int

const (
	// KindValidation - bad inputs (bad label, depth out of range, empty path)
	KindValidation Kind = iota
	// KindEntityNotFound - graph entity absent for a query; distinct from an empty result
	KindEntityNotFound
	// KindConnection - backend RPC transport failed
	KindConnection
	// KindTimeout - operation exceeded its deadline
	KindTimeout
	// KindOperation - backend logic error; retryable iff flagged
	KindOperation
	// KindTokenValidation - malformed token or input to the token API
	KindTokenValidation
	// KindTokenStorage - failure reading or writing the token file
	KindTokenStorage
	// KindFileProcessing - per-file failure during the update pipeline
	KindFileProcessing
	// KindConfig - missing or invalid configuration
	KindConfig
)

// Error is the structured error carried across component boundaries.
// Retryable travels in data so retry helpers never parse messages.
type Error struct {
	Kind      Kind
	Message   string
	Cause     error
	Retryable bool

	// ElapsedMs is set for timeout errors.
	ElapsedMs int64
	// Op and Recoverable are set for token storage errors.
	Op          string
	Recoverable bool
	// Path is set for per-file processing errors.
	Path string

	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind so callers can use errors.Is with a bare kind probe.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithContext attaches a key/value pair for diagnostics.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// DetailedString renders the error with kind tag, cause and context.
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] %s\n", kindString(e.Kind), e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	return sb.String()
}

func kindString(k Kind) string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindEntityNotFound:
		return "NOT_FOUND"
	case KindConnection:
		return "CONNECTION"
	case KindTimeout:
		return "TIMEOUT"
	case KindOperation:
		return "OPERATION"
	case KindTokenValidation:
		return "TOKEN_VALIDATION"
	case KindTokenStorage:
		return "TOKEN_STORAGE"
	case KindFileProcessing:
		return "FILE_PROCESSING"
	case KindConfig:
		return "CONFIG"
	default:
		return "UNKNOWN"
	}
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error, preserving it as the cause.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// Validation creates a validation error. Never retried.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Validationf creates a validation error with formatting.
func Validationf(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// EntityNotFound reports a missing graph entity.
func EntityNotFound(entityType, identifier string) *Error {
	e := New(KindEntityNotFound, fmt.Sprintf("%s not found: %s", entityType, identifier))
	e.Context["entity_type"] = entityType
	e.Context["identifier"] = identifier
	return e
}

// Connection wraps a transport failure. Retryable under policy.
func Connection(err error, message string) *Error {
	e := Wrap(err, KindConnection, message)
	e.Retryable = true
	return e
}

// Connectionf wraps a transport failure with formatting.
func Connectionf(err error, format string, args ...interface{}) *Error {
	return Connection(err, fmt.Sprintf(format, args...))
}

// Timeout reports a deadline overrun with the elapsed duration.
func Timeout(message string, elapsedMs int64) *Error {
	e := New(KindTimeout, fmt.Sprintf("%s (after %dms)", message, elapsedMs))
	e.ElapsedMs = elapsedMs
	e.Retryable = true
	return e
}

// Operation wraps a backend logic error; retryable only when flagged.
func Operation(err error, message string, retryable bool) *Error {
	e := Wrap(err, KindOperation, message)
	if e == nil {
		e = New(KindOperation, message)
	}
	e.Retryable = retryable
	return e
}

// TokenValidation reports malformed token input. Never retried.
func TokenValidation(message string) *Error {
	return New(KindTokenValidation, message)
}

// TokenValidationf reports malformed token input with formatting.
func TokenValidationf(format string, args ...interface{}) *Error {
	return New(KindTokenValidation, fmt.Sprintf(format, args...))
}

// TokenStorage wraps a token file read/write failure.
func TokenStorage(err error, op string, recoverable bool) *Error {
	e := Wrap(err, KindTokenStorage, fmt.Sprintf("token storage %s failed", op))
	if e == nil {
		e = New(KindTokenStorage, fmt.Sprintf("token storage %s failed", op))
	}
	e.Op = op
	e.Recoverable = recoverable
	return e
}

// FileProcessing records a per-file failure; callers collect these without
// aborting the batch.
func FileProcessing(err error, path string) *Error {
	e := Wrap(err, KindFileProcessing, fmt.Sprintf("processing %s failed", path))
	if e == nil {
		e = New(KindFileProcessing, fmt.Sprintf("processing %s failed", path))
	}
	e.Path = path
	return e
}

// Config creates a configuration error. Aborts immediately.
func Config(message string) *Error {
	return New(KindConfig, message)
}

// Configf creates a configuration error with formatting.
func Configf(format string, args ...interface{}) *Error {
	return New(KindConfig, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether an error may be retried under the backoff
// policy. Unrecognised errors are not retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// KindOf returns the kind of an error, or KindOperation for foreign errors.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindOperation
}

// AsError extracts a structured *Error if err carries one.
func AsError(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
