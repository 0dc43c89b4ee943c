// Package pipeline drives the fixed step sequence of a simulation run
// through an execution backend, one run at a time.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haldardhruv/foamchalak/internal/backend"
	"github.com/haldardhruv/foamchalak/internal/broadcast"
	"github.com/haldardhruv/foamchalak/internal/domain"
	"github.com/haldardhruv/foamchalak/internal/runlog"
)

// Options configures a Runner
type Options struct {
	// StopGrace is how long Stop gives a step's process to exit after the
	// polite signal before it is killed. Defaults to 5 seconds.
	StopGrace time.Duration
	// LogFileName is the log file created inside the run's working
	// directory. Defaults to "simulation.log".
	LogFileName string
	// OnTerminal is called after a run reaches a terminal state and its
	// trailer has been written. Called from the run's worker goroutine.
	OnTerminal func(run *domain.Run)
}

// Factory supplies the backend and step table for one run. It is invoked
// on every Start, so configuration edits made through the control surface
// take effect on the next run without a restart.
type Factory func() (backend.Backend, []domain.StepDefinition, error)

// Static returns a factory that always yields the same backend and steps
func Static(b backend.Backend, steps []domain.StepDefinition) Factory {
	return func() (backend.Backend, []domain.StepDefinition, error) {
		return b, steps, nil
	}
}

// Runner owns the single current run. Steps execute strictly in order on
// one worker goroutine; Start, Stop, and Status are safe to call from any
// goroutine.
type Runner struct {
	factory Factory
	bc      *broadcast.Broadcaster
	opts    Options

	mu      sync.Mutex
	current *activeRun
	last    *domain.Run
}

type activeRun struct {
	run           *domain.Run
	backend       backend.Backend
	steps         []domain.StepDefinition
	log           *runlog.Writer
	handle        backend.Handle
	stopRequested bool
}

// NewRunner creates a runner over the given factory. The factory's step
// table is validated on every Start.
func NewRunner(factory Factory, bc *broadcast.Broadcaster, opts Options) *Runner {
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	if opts.LogFileName == "" {
		opts.LogFileName = "simulation.log"
	}
	return &Runner{factory: factory, bc: bc, opts: opts}
}

// Start begins a run in workDir. It fails with domain.ErrAlreadyRunning
// while another run is active; requests never queue. The returned ID
// identifies the run in output lines and status.
func (r *Runner) Start(workDir string) (string, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("working directory %s is not a directory", abs)
	}

	b, steps, err := r.factory()
	if err != nil {
		return "", err
	}
	if err := ValidateSteps(steps); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return "", domain.ErrAlreadyRunning
	}

	run := &domain.Run{
		ID:        newRunID(),
		WorkDir:   abs,
		State:     domain.RunRunning,
		StartedAt: time.Now(),
	}
	for _, def := range steps {
		run.Steps = append(run.Steps, &domain.StepResult{Name: def.Name, Status: domain.StepPending})
	}

	// Creating the log doubles as the writability check on the run dir.
	log, err := runlog.Create(filepath.Join(abs, r.opts.LogFileName), run.ID, abs, run.StartedAt)
	if err != nil {
		return "", err
	}

	a := &activeRun{run: run, backend: b, steps: steps, log: log}
	r.current = a
	r.bc.SetSink(log)

	go r.execute(a)
	return run.ID, nil
}

// Stop interrupts the current run. Idempotent: on an already-stopping or
// finished run it is a no-op that reports the state it observed. The
// in-flight step's process gets the configured grace period; steps that
// have not started never will.
func (r *Runner) Stop() domain.RunState {
	r.mu.Lock()
	a := r.current
	if a == nil {
		state := domain.RunIdle
		if r.last != nil {
			state = r.last.State
		}
		r.mu.Unlock()
		return state
	}
	a.stopRequested = true
	h := a.handle
	r.mu.Unlock()

	if h != nil {
		h.Stop(r.opts.StopGrace)
	}
	return domain.RunRunning
}

// Status is a point-in-time snapshot of the current (or most recent) run
type Status struct {
	RunID      string              `json:"run_id,omitempty"`
	State      domain.RunState     `json:"state"`
	WorkDir    string              `json:"work_dir,omitempty"`
	ActiveStep string              `json:"active_step,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Steps      []domain.StepResult `json:"steps,omitempty"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	EndedAt    *time.Time          `json:"ended_at,omitempty"`
	ExitCode   *int                `json:"exit_code,omitempty"`
}

// Status reports the current run, or the last finished one, or idle.
// Safe to call concurrently with Start and Stop.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	var run *domain.Run
	switch {
	case r.current != nil:
		run = r.current.run
	case r.last != nil:
		run = r.last
	default:
		return Status{State: domain.RunIdle}
	}

	st := Status{
		RunID:      run.ID,
		State:      run.State,
		WorkDir:    run.WorkDir,
		ActiveStep: run.ActiveStep(),
		Reason:     run.Reason,
	}
	started := run.StartedAt
	st.StartedAt = &started
	st.EndedAt = run.EndedAt
	if run.State.Terminal() {
		code := run.ExitCode
		st.ExitCode = &code
	}
	for _, s := range run.Steps {
		st.Steps = append(st.Steps, *s)
	}
	return st
}

// execute is the run's worker: strictly sequential steps, each drained to
// the broadcaster before its exit code is read.
func (r *Runner) execute(a *activeRun) {
	run := a.run

	for i := range a.steps {
		def := a.steps[i]
		sr := run.Steps[i]

		if r.stopRequested(a) {
			r.skipPending(run)
			r.finish(a, domain.RunStopped, domain.ExitCodeStopped, "stopped by request")
			return
		}

		r.mu.Lock()
		now := time.Now()
		sr.Status = domain.StepRunning
		sr.StartedAt = &now
		r.mu.Unlock()
		r.publishSystem(run, def.Name, fmt.Sprintf("--> step %s: %s", def.Name, def.Command))

		h, err := a.backend.Start(context.Background(), backend.Spec{
			RunID:   run.ID,
			Step:    def.Name,
			Command: def.Command,
			WorkDir: run.WorkDir,
		})
		if err != nil {
			// Infrastructure failure: fatal regardless of policy.
			r.endStep(sr, nil, domain.StepFailed, err.Error())
			r.skipPending(run)
			r.publishSystem(run, def.Name, fmt.Sprintf("step %s could not start: %v", def.Name, err))
			r.finish(a, domain.RunFailed, domain.ExitCodeBackendFailure, err.Error())
			return
		}
		r.setHandle(a, h)

		for line := range h.Lines() {
			r.bc.Publish(line)
		}
		code, werr := h.Wait()
		r.setHandle(a, nil)

		if werr != nil {
			r.endStep(sr, nil, domain.StepFailed, werr.Error())
			r.skipPending(run)
			r.publishSystem(run, def.Name, fmt.Sprintf("step %s failed: %v", def.Name, werr))
			r.finish(a, domain.RunFailed, domain.ExitCodeBackendFailure, werr.Error())
			return
		}

		if r.stopRequested(a) {
			r.endStep(sr, &code, domain.StepFailed, "interrupted by stop request")
			r.skipPending(run)
			r.publishSystem(run, def.Name, fmt.Sprintf("step %s interrupted", def.Name))
			r.finish(a, domain.RunStopped, domain.ExitCodeStopped, "stopped by request")
			return
		}

		if code == 0 {
			r.endStep(sr, &code, domain.StepCompleted, "")
			r.publishSystem(run, def.Name, fmt.Sprintf("step %s completed", def.Name))
			continue
		}

		r.endStep(sr, &code, domain.StepFailed, fmt.Sprintf("exit code %d", code))

		if def.Policy == domain.PolicyContinueOnFailure {
			// Diagnostic failure: visible in the summary, but the run
			// goes on and can still complete.
			r.publishSystem(run, def.Name, fmt.Sprintf("step %s failed (exit %d), continuing", def.Name, code))
			continue
		}

		r.skipPending(run)
		r.publishSystem(run, def.Name, fmt.Sprintf("step %s failed (exit %d), aborting", def.Name, code))
		r.finish(a, domain.RunFailed, code, fmt.Sprintf("step %s exited with code %d", def.Name, code))
		return
	}

	r.finish(a, domain.RunCompleted, 0, "")
}

// finish records the terminal state, publishes the terminal event, writes
// the trailer, and releases the single-run slot.
func (r *Runner) finish(a *activeRun, state domain.RunState, exitCode int, reason string) {
	run := a.run

	// The log is the source of truth. A failed write cannot be undone,
	// but it must show up in the terminal summary instead of the run
	// quietly reporting success over a truncated log.
	if serr := r.bc.SinkErr(); serr != nil {
		msg := fmt.Sprintf("run log write failed: %v", serr)
		r.publishSystem(run, "", msg)
		if reason == "" {
			reason = msg
		} else {
			reason = reason + "; " + msg
		}
	}

	r.mu.Lock()
	now := time.Now()
	run.EndedAt = &now
	run.State = state
	run.ExitCode = exitCode
	run.Reason = reason
	r.mu.Unlock()

	r.publishSystem(run, "", fmt.Sprintf("run %s %s after %s (exit %d)",
		run.ID, state, run.Duration().Round(time.Millisecond), exitCode))

	r.bc.SetSink(nil)
	if err := a.log.WriteTrailer(run); err != nil {
		r.publishSystem(run, "", fmt.Sprintf("run log trailer failed: %v", err))
	}

	r.mu.Lock()
	r.last = run
	r.current = nil
	r.mu.Unlock()

	if r.opts.OnTerminal != nil {
		r.opts.OnTerminal(run)
	}
}

func (r *Runner) stopRequested(a *activeRun) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return a.stopRequested
}

func (r *Runner) setHandle(a *activeRun, h backend.Handle) {
	r.mu.Lock()
	a.handle = h
	stop := a.stopRequested
	r.mu.Unlock()

	// Stop raced with the step launch: it found no handle to signal, so
	// deliver the stop here.
	if stop && h != nil {
		h.Stop(r.opts.StopGrace)
	}
}

func (r *Runner) endStep(sr *domain.StepResult, exitCode *int, status domain.StepStatus, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	sr.EndedAt = &now
	sr.ExitCode = exitCode
	sr.Status = status
	sr.Reason = reason
}

// skipPending marks every step that never started as skipped
func (r *Runner) skipPending(run *domain.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range run.Steps {
		if s.Status == domain.StepPending {
			s.Status = domain.StepSkipped
		}
	}
}

func (r *Runner) publishSystem(run *domain.Run, step, text string) {
	r.bc.Publish(domain.OutputLine{
		RunID:     run.ID,
		Step:      step,
		Timestamp: time.Now(),
		Text:      text,
		Channel:   domain.ChannelSystem,
	})
}

// newRunID derives an identifier from the creation timestamp; the suffix
// keeps it unique within one process lifetime.
func newRunID() string {
	return fmt.Sprintf("run_%s_%s", time.Now().Format("20060102_150405"), uuid.NewString()[:8])
}
