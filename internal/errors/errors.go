package errors

import (
	stderrors "errors"
	"fmt"
)

// MirrorError is the structured error type for tflmirror.
// It carries entity/field/value context so the pipeline controller can
// report exactly which row or clause failed.
type MirrorError struct {
	// Code is the unique error code (e.g., "ERR_402_ENCODING").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried by the caller.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *MirrorError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MirrorError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with MirrorError.
func (e *MirrorError) Is(target error) bool {
	if t, ok := target.(*MirrorError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *MirrorError) WithDetail(key, value string) *MirrorError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *MirrorError) WithSuggestion(suggestion string) *MirrorError {
	e.Suggestion = suggestion
	return e
}

// New creates a new MirrorError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *MirrorError {
	return &MirrorError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a MirrorError from an existing error.
// The error's message becomes the MirrorError message.
func Wrap(code string, err error) *MirrorError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *MirrorError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// EncodingError reports a value that cannot be represented as the field's
// declared type. No partial document is produced for the row.
func EncodingError(field string, value any, cause error) *MirrorError {
	msg := fmt.Sprintf("cannot encode %v (%T) for field %s", value, value, field)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return New(ErrCodeEncoding, msg, cause).
		WithDetail("field", field).
		WithDetail("value", fmt.Sprintf("%v", value))
}

// QueryParseError reports a malformed filter expression.
func QueryParseError(expression string, cause error) *MirrorError {
	msg := fmt.Sprintf("cannot parse filter %q", expression)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return New(ErrCodeQueryParse, msg, cause).WithDetail("expression", expression)
}

// LockContentionError reports that a writer could not acquire exclusive
// access to an index directory.
func LockContentionError(path string) *MirrorError {
	return New(ErrCodeLockContention, fmt.Sprintf("index %s is locked by another writer", path), nil).
		WithDetail("path", path).
		WithSuggestion("Wait for the other sync to finish, or pass --lock-retries")
}

// DuplicateIdentityError reports more than one document sharing an identity key.
func DuplicateIdentityError(identity string, hits uint64) *MirrorError {
	return New(ErrCodeDuplicateIdentity,
		fmt.Sprintf("%d documents share identity %q, updating the first", hits, identity), nil).
		WithDetail("identity", identity).
		WithDetail("hits", fmt.Sprintf("%d", hits))
}

// CommitFailure reports a failed durable flush; nothing from the batch is visible.
func CommitFailure(path string, cause error) *MirrorError {
	return New(ErrCodeCommitFailed, fmt.Sprintf("commit to %s failed", path), cause).
		WithDetail("path", path)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *MirrorError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a MirrorError with Retryable set.
func IsRetryable(err error) bool {
	var me *MirrorError
	if stderrors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var me *MirrorError
	if stderrors.As(err, &me) {
		return me.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether the error chain contains a MirrorError with code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// IsEncoding reports whether err is an EncodingError.
func IsEncoding(err error) bool { return HasCode(err, ErrCodeEncoding) }

// IsQueryParse reports whether err is a QueryParseError.
func IsQueryParse(err error) bool { return HasCode(err, ErrCodeQueryParse) }

// IsLockContention reports whether err is a LockContentionError.
func IsLockContention(err error) bool { return HasCode(err, ErrCodeLockContention) }

// IsCommitFailure reports whether err is a CommitFailure.
func IsCommitFailure(err error) bool { return HasCode(err, ErrCodeCommitFailed) }

// GetCode extracts the error code from the first MirrorError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var me *MirrorError
	if stderrors.As(err, &me) {
		return me.Code
	}
	return ""
}

// GetCategory extracts the category from the first MirrorError in the chain.
func GetCategory(err error) Category {
	var me *MirrorError
	if stderrors.As(err, &me) {
		return me.Category
	}
	return ""
}
