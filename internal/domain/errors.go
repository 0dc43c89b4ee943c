package domain

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by start when a run is already in flight.
// The request never queues; the caller retries after the current run ends.
var ErrAlreadyRunning = errors.New("a simulation run is already in progress")

// ErrSubscriberOverflow is reported to a subscriber whose buffer filled up.
// The subscriber is dropped; the run and other subscribers are unaffected.
var ErrSubscriberOverflow = errors.New("subscriber buffer overflow, stream dropped")

// BackendUnavailableError means the execution substrate (process spawner or
// container runtime) could not be reached. Always fatal to the run.
type BackendUnavailableError struct {
	Backend string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// CommandNotFoundError means the target binary or container image is absent.
// Always fatal to the run.
type CommandNotFoundError struct {
	Command string
	Err     error
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("command not found: %s", e.Command)
}

func (e *CommandNotFoundError) Unwrap() error { return e.Err }

// IsInfrastructureError reports whether err is fatal to the run regardless
// of the failing step's policy.
func IsInfrastructureError(err error) bool {
	var unavailable *BackendUnavailableError
	var notFound *CommandNotFoundError
	return errors.As(err, &unavailable) || errors.As(err, &notFound)
}
