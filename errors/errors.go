package errors

import (
	"fmt"
	"maps"
)

// PlatformError is an error carrying a code, a retry classification and
// optional structured context.
type PlatformError interface {
	error

	// Code returns the error code.
	Code() ErrorCode

	// Classification reports whether the failed operation may be retried.
	Classification() ErrorClassification

	// Message returns the message without the wrapped cause.
	Message() string

	// Context returns a copy of the attached context, or nil.
	Context() map[string]interface{}

	// Unwrap returns the wrapped cause, or nil.
	Unwrap() error
}

type platformError struct {
	code           ErrorCode
	classification ErrorClassification
	message        string
	context        map[string]interface{}
	cause          error
}

func (e *platformError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *platformError) Code() ErrorCode { return e.code }

func (e *platformError) Classification() ErrorClassification { return e.classification }

func (e *platformError) Message() string { return e.message }

func (e *platformError) Context() map[string]interface{} {
	if e.context == nil {
		return nil
	}
	return maps.Clone(e.context)
}

func (e *platformError) Unwrap() error { return e.cause }

// New creates a PlatformError with the default classification for code.
func New(code ErrorCode, message string) PlatformError {
	return &platformError{
		code:           code,
		classification: classify(code),
		message:        message,
	}
}

// Newf creates a PlatformError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) PlatformError {
	return New(code, fmt.Sprintf(format, args...))
}

// asPlatform returns err as a PlatformError, promoting plain errors to
// CodeUnknown so context can be attached to anything.
func asPlatform(err error) PlatformError {
	var pe PlatformError
	if As(err, &pe) {
		return pe
	}
	return &platformError{
		code:           CodeUnknown,
		classification: ClassificationPermanent,
		message:        err.Error(),
		cause:          err,
	}
}
