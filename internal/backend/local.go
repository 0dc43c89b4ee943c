package backend

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/haldardhruv/foamchalak/internal/domain"
)

// Local runs steps as child processes rooted at the working directory.
// Stderr is merged into stdout; ordering across the two streams is not
// guaranteed, only within each stream.
type Local struct {
	env []string // environment sourced from the OpenFOAM bashrc, may be nil
}

// NewLocal creates a local backend. env holds extra KEY=VALUE entries
// (typically from LoadFoamEnv) layered over the process environment.
func NewLocal(env []string) *Local {
	return &Local{env: env}
}

// Name implements Backend
func (l *Local) Name() string { return "local" }

// Start implements Backend
func (l *Local) Start(ctx context.Context, spec Spec) (Handle, error) {
	env := append(os.Environ(), l.env...)
	env = append(env, spec.Env...)

	if err := lookupCommand(spec.Command, spec.WorkDir, env); err != nil {
		return nil, err
	}

	cmd := exec.Command("bash", "-c", spec.Command)
	cmd.Dir = spec.WorkDir
	cmd.Env = env

	// Merge stderr into stdout through a single pipe so downstream sees
	// one ordered stream per run.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, &domain.BackendUnavailableError{Backend: "local", Err: err}
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, &domain.BackendUnavailableError{Backend: "local", Err: err}
	}
	// The child holds its own copy of the write end.
	pw.Close()

	h := &localHandle{
		cmd:   cmd,
		lines: make(chan domain.OutputLine, lineBuffer),
		done:  make(chan struct{}),
	}
	go h.scan(pr, spec)
	return h, nil
}

const lineBuffer = 64

// shellMeta marks commands that are bash syntax rather than a plain
// binary invocation: builtins, operators, expansions.
const shellMeta = "|&;<>()$`\\\"'*?[]#~{}"

// lookupCommand verifies the step's executable exists before spawning.
// Only a lone binary name or path is checked; anything with arguments or
// shell syntax (builtins like exit, pipes, expansions) is left to bash,
// which reports its own exit code as ordinary step data.
func lookupCommand(command, workDir string, env []string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return &domain.CommandNotFoundError{Command: command}
	}
	if len(fields) > 1 || strings.ContainsAny(fields[0], shellMeta) {
		return nil
	}
	name := fields[0]

	if strings.Contains(name, "/") {
		p := name
		if !filepath.IsAbs(p) {
			p = filepath.Join(workDir, p)
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			return &domain.CommandNotFoundError{Command: name, Err: err}
		}
		return nil
	}

	for _, dir := range filepath.SplitList(pathFromEnv(env)) {
		if dir == "" {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, name))
		if err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return nil
		}
	}
	return &domain.CommandNotFoundError{Command: name, Err: exec.ErrNotFound}
}

// pathFromEnv returns the effective PATH from env, last entry winning
func pathFromEnv(env []string) string {
	path := os.Getenv("PATH")
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			path = v
		}
	}
	return path
}

type localHandle struct {
	cmd      *exec.Cmd
	lines    chan domain.OutputLine
	done     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
}

func (h *localHandle) Lines() <-chan domain.OutputLine { return h.lines }

func (h *localHandle) scan(r *os.File, spec Spec) {
	defer close(h.lines)
	defer r.Close()

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		h.lines <- domain.OutputLine{
			RunID:     spec.RunID,
			Step:      spec.Step,
			Timestamp: time.Now(),
			Text:      scanner.Text(),
			Channel:   domain.ChannelStdout,
		}
	}
}

// Wait implements Handle. Must be called exactly once, after draining Lines.
func (h *localHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	h.doneOnce.Do(func() { close(h.done) })

	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("waiting for process: %w", err)
}

// Stop implements Handle: SIGTERM first, SIGKILL once the grace period
// elapses without the process exiting.
func (h *localHandle) Stop(grace time.Duration) error {
	proc := h.cmd.Process
	if proc == nil {
		return nil
	}
	h.stopOnce.Do(func() {
		proc.Signal(syscall.SIGTERM)
		go func() {
			select {
			case <-h.done:
			case <-time.After(grace):
				proc.Kill()
			}
		}()
	})
	return nil
}
