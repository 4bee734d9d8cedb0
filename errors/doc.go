// Package errors provides the structured error type used across the scan
// pipeline.
//
// Every failure the pipeline surfaces carries an ErrorCode that places it in
// the pipeline's taxonomy (invalid identifier, acquisition, scan, attribution,
// cancellation) and a classification that tells callers whether the same
// operation may succeed if attempted again. Errors stay compatible with the
// standard library (errors.Is, errors.As, errors.Unwrap).
//
// Creating and wrapping:
//
//	err := errors.New(errors.CodeInvalidIdentifier, "repository path must include owner and name")
//
//	if err := driver.Clone(ctx, id, dest); err != nil {
//	    return errors.Wrap(err, errors.CodeAcquisitionFailed, "failed to clone repository")
//	}
//
// Attaching context:
//
//	err = errors.WithContext(err, "repository", id.String())
//
// Reporting:
//
//	detail := errors.ToJSON(err) // *ErrorResponse, embedded in progress events
package errors
