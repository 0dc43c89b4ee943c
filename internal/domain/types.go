package domain

import "time"

// RunState represents the lifecycle state of a run
type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunStopped   RunState = "stopped"
)

// Terminal reports whether the state is final
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunStopped
}

// StepStatus represents the execution state of a single step
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// FailurePolicy governs whether a nonzero exit halts the remaining pipeline
type FailurePolicy string

const (
	// PolicyAbort halts the pipeline on nonzero exit (the default)
	PolicyAbort FailurePolicy = "abort"
	// PolicyContinueOnFailure records the failure but keeps going.
	// Used for diagnostic steps like checkMesh.
	PolicyContinueOnFailure FailurePolicy = "continue_on_failure"
)

// Channel identifies which stream an output line came from
type Channel string

const (
	ChannelStdout Channel = "stdout"
	ChannelStderr Channel = "stderr"
	// ChannelSystem carries lifecycle events (step started, run finished)
	// interleaved with process output.
	ChannelSystem Channel = "system"
)

// Exit codes surfaced to the control surface when no step exit code applies.
// 125 matches the Docker CLI convention for daemon-side failures.
const (
	ExitCodeBackendFailure = 125
	ExitCodeStopped        = 130
)

// OutputLine is one line of process or lifecycle output
type OutputLine struct {
	RunID     string    `json:"run_id"`
	Step      string    `json:"step,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Channel   Channel   `json:"channel"`
}
