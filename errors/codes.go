package errors

// ErrorCode identifies a failure condition. Codes are strings so they read
// well in logs and serialize naturally.
type ErrorCode string

// Pipeline codes.
const (
	// CodeInvalidIdentifier marks a malformed or unsupported repository
	// reference. It is raised before any I/O.
	CodeInvalidIdentifier ErrorCode = "INVALID_IDENTIFIER"

	// CodeAcquisitionFailed marks a clone or update failure.
	CodeAcquisitionFailed ErrorCode = "ACQUISITION_FAILED"

	// CodeCacheBusy marks a cache entry that is held by an acquisition or a
	// running scan.
	CodeCacheBusy ErrorCode = "CACHE_BUSY"

	// CodeScanFailed marks a failure of the marker search step.
	CodeScanFailed ErrorCode = "SCAN_FAILED"

	// CodeAttributionFailed marks a failure to attribute a single line.
	CodeAttributionFailed ErrorCode = "ATTRIBUTION_FAILED"

	// CodeNotAttributable marks a line the history cannot account for, such
	// as an uncommitted line or one past the end of the file.
	CodeNotAttributable ErrorCode = "NOT_ATTRIBUTABLE"

	// CodeCancelled marks an operation stopped by its caller.
	CodeCancelled ErrorCode = "CANCELLED"
)

// Infrastructure codes.
const (
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeConflict        ErrorCode = "CONFLICT"
	CodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodeInvalidConfig   ErrorCode = "INVALID_CONFIGURATION"
	CodeNetwork         ErrorCode = "NETWORK_ERROR"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
	CodeUnknown         ErrorCode = "UNKNOWN"
)

// ErrorClassification says whether an operation that failed may succeed if
// attempted again.
type ErrorClassification string

const (
	// ClassificationRetryable marks transient failures.
	ClassificationRetryable ErrorClassification = "RETRYABLE"

	// ClassificationPermanent marks failures that will repeat.
	ClassificationPermanent ErrorClassification = "PERMANENT"
)

// IsRetryable reports whether c is ClassificationRetryable.
func (c ErrorClassification) IsRetryable() bool {
	return c == ClassificationRetryable
}

var retryable = map[ErrorCode]bool{
	CodeCacheBusy: true,
	CodeNetwork:   true,
	CodeTimeout:   true,
}

// classify returns the default classification for code. Unlisted codes are
// permanent.
func classify(code ErrorCode) ErrorClassification {
	if retryable[code] {
		return ClassificationRetryable
	}
	return ClassificationPermanent
}
