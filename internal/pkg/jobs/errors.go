package jobs

import "errors"

var (
	// ErrQuotaExceeded is returned when the atomic quota consume found no
	// remaining quota. No provider call is made in that case.
	ErrQuotaExceeded = errors.New("monthly quota exceeded")

	// ErrFaceswapLimit is returned when the rolling monthly faceswap count
	// already reached the plan limit. Checked before quota consumption.
	ErrFaceswapLimit = errors.New("monthly faceswap limit reached")

	// ErrJobNotPending is returned when a job is submitted twice.
	ErrJobNotPending = errors.New("job has already been submitted for processing")

	// ErrDispatchRejected is returned when the compute provider declined the
	// job synchronously. The job is failed and the quota unit refunded.
	ErrDispatchRejected = errors.New("compute provider rejected the job")
)

// ValidationError rejects a request before any state is mutated.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
