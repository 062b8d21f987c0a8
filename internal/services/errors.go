package services

import "fmt"

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// AnalysisError is returned when the analysis provider fails or yields an
// unusable result. The recording has already been moved to Failed.
type AnalysisError struct {
	RecordingID string
	Err         error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed for recording %s: %v", e.RecordingID, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// PersistenceError wraps a store failure. Op names the write that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UnusableResultError marks provider output that can never become usable by
// asking again (malformed JSON, missing or non-finite scores).
type UnusableResultError struct{ Reason string }

func (e *UnusableResultError) Error() string { return "unusable analysis result: " + e.Reason }

type QueueFullError struct {
	Depth int64
	Max   int64
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("analysis queue is full (%d/%d)", e.Depth, e.Max)
}

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

// ProviderRejectedError is a non-retryable refusal from an upstream
// provider, such as an authentication failure or a malformed request.
type ProviderRejectedError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderRejectedError) Error() string {
	return fmt.Sprintf("%s rejected the request (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *ProviderRejectedError) Unwrap() error { return e.Err }
