package errors

import (
	"context"
	stderrors "errors"
)

// Is forwards to the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As forwards to the standard library.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// GetCode returns the code of the outermost PlatformError in err's chain, or
// CodeUnknown.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	var pe PlatformError
	if stderrors.As(err, &pe) {
		return pe.Code()
	}
	return CodeUnknown
}

// HasCode reports whether any PlatformError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if pe, ok := err.(PlatformError); ok && pe.Code() == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// GetClassification returns the classification of err. Plain errors are
// permanent.
func GetClassification(err error) ErrorClassification {
	var pe PlatformError
	if err != nil && stderrors.As(err, &pe) {
		return pe.Classification()
	}
	return ClassificationPermanent
}

// IsRetryable reports whether err is classified as retryable.
func IsRetryable(err error) bool {
	return GetClassification(err).IsRetryable()
}

// IsCancelled reports whether err was caused by the caller cancelling, either
// through a CodeCancelled error or a bare context.Canceled.
func IsCancelled(err error) bool {
	return HasCode(err, CodeCancelled) || stderrors.Is(err, context.Canceled)
}

// FromContext converts the error of a finished context into a PlatformError:
// cancellation becomes CodeCancelled and an expired deadline CodeTimeout. It
// returns nil while ctx is still live.
func FromContext(ctx context.Context) PlatformError {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case stderrors.Is(err, context.DeadlineExceeded):
		return Wrap(err, CodeTimeout, "deadline exceeded")
	default:
		return Wrap(err, CodeCancelled, "operation cancelled")
	}
}
