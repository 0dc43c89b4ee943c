package domain

import "time"

// StepDefinition is one configured pipeline step. Definitions are immutable
// once the pipeline is built.
type StepDefinition struct {
	Name    string
	Command string
	Policy  FailurePolicy
}

// StepResult tracks one step's execution within a run
type StepResult struct {
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Run represents a single execution attempt of the step pipeline
type Run struct {
	ID        string
	WorkDir   string
	State     RunState
	Steps     []*StepResult
	StartedAt time.Time
	EndedAt   *time.Time
	// ExitCode is the summary exit code surfaced to the control surface:
	// 0 when all steps completed, the first aborting step's exit code,
	// or one of the sentinel values for stop / backend failure.
	ExitCode int
	Reason   string
}

// Duration returns how long the run has been going, or took in total
func (r *Run) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	if r.EndedAt != nil {
		return r.EndedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// ActiveStep returns the name of the step currently running, if any
func (r *Run) ActiveStep() string {
	for _, s := range r.Steps {
		if s.Status == StepRunning {
			return s.Name
		}
	}
	return ""
}
