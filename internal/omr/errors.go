package omr

import (
	"errors"
	"fmt"
)

// Failure kinds of the grading pipeline. Everything except a validation
// error fails the submission; a validation error is reported to the caller
// before any job starts.
var (
	// ErrCapabilityUnavailable: the remote extraction call failed at the
	// transport level or returned a non-success reply.
	ErrCapabilityUnavailable = errors.New("mark extraction capability unavailable")

	// ErrLowImageQuality: the remote capability could read the request but
	// not the sheet. User-actionable: re-upload a clearer image.
	ErrLowImageQuality = errors.New("image quality too low to read the sheet")

	// ErrMalformedResponse: the reply carried no JSON object matching the
	// expected answers schema.
	ErrMalformedResponse = errors.New("extraction reply did not match the expected schema")

	// ErrPersistence: committing the graded result set failed.
	ErrPersistence = errors.New("persisting graded results failed")

	// ErrNotReady: export requested for a submission that is not completed
	// with a full result set.
	ErrNotReady = errors.New("submission has no finalized results to export")
)

// ValidationError reports rejected input, with the 1-based answer key entry
// that caused it when one is known (0 otherwise).
type ValidationError struct {
	Line int
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("entry %d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

// Persisted failure_reason values. One per taxonomy kind so observers can
// distinguish a low-quality image from everything else.
const (
	ReasonCapabilityUnavailable = "capability_unavailable"
	ReasonLowImageQuality       = "low_image_quality"
	ReasonMalformedResponse     = "malformed_response"
	ReasonPersistenceError      = "persistence_error"
	ReasonValidationError       = "validation_error"
	ReasonInternalError         = "internal_error"
)

// FailureReason maps a pipeline error to its persisted failure_reason.
func FailureReason(err error) string {
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrLowImageQuality):
		return ReasonLowImageQuality
	case errors.Is(err, ErrCapabilityUnavailable):
		return ReasonCapabilityUnavailable
	case errors.Is(err, ErrMalformedResponse):
		return ReasonMalformedResponse
	case errors.Is(err, ErrPersistence):
		return ReasonPersistenceError
	case errors.As(err, &ve):
		return ReasonValidationError
	default:
		return ReasonInternalError
	}
}
