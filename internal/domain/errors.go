package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// The consumer never inspects these directly; it classifies failures through
// StageError. HTTP handlers translate them to status codes via mapError.
var (
	ErrNotFound       = errors.New("not found")
	ErrMalformedEvent = errors.New("malformed event")
	ErrMissingTenant  = errors.New("event has no tenant id")
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrTenantNotFound = errors.New("tenant not found")
	ErrInvalidChannel = errors.New("invalid channel: must be email, sms, or push")
	ErrNoRecipient    = errors.New("no address for channel")
	ErrInvalidStatus  = errors.New("invalid status: must be sent, skipped-no-address, or failed")
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageDecode   Stage = "decode"
	StageEnrich   Stage = "enrich"
	StageRender   Stage = "render"
	StageDispatch Stage = "dispatch"
)

// StageError tags an error with the pipeline stage that produced it and
// whether redelivering the same event could succeed.
type StageError struct {
	Stage     Stage
	Retryable bool
	Err       error
}

func (e *StageError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s (%s): %v", e.Stage, kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Permanent wraps err as a failure that will never succeed on redelivery.
func Permanent(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Retryable: false, Err: err}
}

// Retryable wraps err as a transient failure.
func Retryable(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Retryable: true, Err: err}
}

// IsRetryable reports whether err, or any error it wraps, is a retryable
// StageError. Untagged errors are treated as retryable: losing a message to
// an unexpected error is worse than retrying it.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return true
}

// StageOf returns the stage recorded on err, or "" if it carries none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
