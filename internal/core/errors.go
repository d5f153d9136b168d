package core

import "errors"

var (
	// ErrServiceUnavailable indicates a network failure or non-2xx answer from an
	// external collaborator.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrValidation indicates missing or malformed caller input.
	ErrValidation = errors.New("validation error")
	// ErrProtected indicates an attempt to remove a code-defined voice.
	ErrProtected = errors.New("protected")
	// ErrNotFound indicates an unknown artifact or voice id.
	ErrNotFound = errors.New("not found")
	// ErrInFlight indicates a stage operation is already running for the artifact.
	ErrInFlight = errors.New("operation already in flight")
	// ErrIllegalTransition indicates the artifact is not in a state that allows the operation.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrBatchRunning indicates a batch for the same stage is still active.
	ErrBatchRunning = errors.New("batch already running")
	// ErrKeyNotFound is returned by KeyValueStore implementations for absent keys.
	ErrKeyNotFound = errors.New("key not found")
)

// Error kinds reported to remote callers.
const (
	KindServiceUnavailable = "ServiceUnavailable"
	KindValidation         = "ValidationError"
	KindProtected          = "Protected"
	KindNotFound           = "NotFound"
	KindBusy               = "Busy"
	KindConflict           = "Conflict"
	KindInternal           = "Internal"
)

// ErrorKind classifies err into one of the reported error kinds.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrProtected):
		return KindProtected
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInFlight), errors.Is(err, ErrBatchRunning):
		return KindBusy
	case errors.Is(err, ErrIllegalTransition):
		return KindConflict
	case errors.Is(err, ErrServiceUnavailable):
		return KindServiceUnavailable
	default:
		return KindInternal
	}
}
