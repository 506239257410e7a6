package models

import "errors"

// Programmer errors. These are the only errors the dispatcher returns.
var (
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrInvalidPayload  = errors.New("invalid payload")
)

// Tier failures. They advance the cascade and are never surfaced to consumers.
var (
	ErrBackendUnavailable  = errors.New("backend unavailable")
	ErrBackendLoadFailed   = errors.New("backend load failed")
	ErrProcessLaunchFailed = errors.New("isolated process launch failed")
	ErrProcessTimeout      = errors.New("isolated process timeout")
	ErrProcessNonZeroExit  = errors.New("isolated process non-zero exit")
	ErrMalformedResponse   = errors.New("malformed response")
	ErrAllTiersExhausted   = errors.New("all tiers exhausted")
)

// FailureKind names a tier failure for logs and metrics.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrBackendLoadFailed):
		return "backend_load_failed"
	case errors.Is(err, ErrProcessLaunchFailed):
		return "process_launch_failed"
	case errors.Is(err, ErrProcessTimeout):
		return "process_timeout"
	case errors.Is(err, ErrProcessNonZeroExit):
		return "process_non_zero_exit"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrAllTiersExhausted):
		return "all_tiers_exhausted"
	default:
		return "backend_error"
	}
}
