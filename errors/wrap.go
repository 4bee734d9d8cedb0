package errors

import (
	"fmt"
	"maps"
)

// Wrap wraps err with a code and message. When err already carries a
// classification it is kept, so a retryable network failure stays retryable
// after being wrapped as an acquisition failure. Wrap returns nil for a nil
// err.
func Wrap(err error, code ErrorCode, message string) PlatformError {
	if err == nil {
		return nil
	}

	classification := classify(code)
	var pe PlatformError
	if As(err, &pe) {
		classification = pe.Classification()
	}

	return &platformError{
		code:           code,
		classification: classification,
		message:        message,
		cause:          err,
	}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) PlatformError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WithContext returns a copy of err with key set to value.
func WithContext(err error, key string, value interface{}) PlatformError {
	if err == nil {
		return nil
	}
	return WithContextMap(err, map[string]interface{}{key: value})
}

// WithContextMap returns a copy of err with every entry of ctx added to its
// context. Existing keys are overwritten.
func WithContextMap(err error, ctx map[string]interface{}) PlatformError {
	if err == nil {
		return nil
	}

	pe := asPlatform(err)
	merged := make(map[string]interface{}, len(ctx))
	maps.Copy(merged, pe.Context())
	maps.Copy(merged, ctx)

	return &platformError{
		code:           pe.Code(),
		classification: pe.Classification(),
		message:        pe.Message(),
		context:        merged,
		cause:          pe.Unwrap(),
	}
}
