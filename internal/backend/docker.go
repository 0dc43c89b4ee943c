package backend

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/haldardhruv/foamchalak/internal/domain"
)

// caseMountPoint is where the run's working directory is bind-mounted
// inside the container.
const caseMountPoint = "/case"

// Docker runs steps inside ephemeral containers. The working directory is
// bind-mounted read-write at /case and the container is removed on every
// exit path: normal completion, failure, or explicit stop.
type Docker struct {
	Image        string
	BashrcPath   string // OpenFOAM bashrc inside the container
	MemoryLimit  string // e.g. "4g", empty for no limit
	ProbeTimeout time.Duration
}

// NewDocker creates a docker backend for the given image. bashrcPath is the
// in-container path of the OpenFOAM environment script.
func NewDocker(image, bashrcPath string) *Docker {
	return &Docker{
		Image:        image,
		BashrcPath:   bashrcPath,
		MemoryLimit:  "4g",
		ProbeTimeout: 5 * time.Second,
	}
}

// Name implements Backend
func (d *Docker) Name() string { return "docker" }

// Start implements Backend. The daemon probe is bounded by ProbeTimeout so
// an unreachable daemon reports BackendUnavailableError instead of hanging.
func (d *Docker) Start(ctx context.Context, spec Spec) (Handle, error) {
	probeCtx, cancel := context.WithTimeout(ctx, d.ProbeTimeout)
	defer cancel()
	probe := exec.CommandContext(probeCtx, "docker", "version", "--format", "{{.Server.Version}}")
	if err := probe.Run(); err != nil {
		return nil, &domain.BackendUnavailableError{Backend: "docker", Err: err}
	}

	inspect := exec.CommandContext(ctx, "docker", "image", "inspect", d.Image)
	if err := inspect.Run(); err != nil {
		return nil, &domain.CommandNotFoundError{Command: d.Image, Err: err}
	}

	name := containerName(spec)
	cmd := exec.Command("docker", d.runArgs(spec, name)...)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, &domain.BackendUnavailableError{Backend: "docker", Err: err}
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, &domain.BackendUnavailableError{Backend: "docker", Err: err}
	}
	pw.Close()

	h := &dockerHandle{
		cmd:       cmd,
		container: name,
		lines:     make(chan domain.OutputLine, lineBuffer),
		done:      make(chan struct{}),
	}
	go h.scan(pr, spec)
	return h, nil
}

// runArgs builds the docker run invocation for one step
func (d *Docker) runArgs(spec Spec, name string) []string {
	args := []string{
		"run", "--rm",
		"--name", name,
		"-v", spec.WorkDir + ":" + caseMountPoint,
		"-w", caseMountPoint,
	}
	if d.MemoryLimit != "" {
		args = append(args, "--memory", d.MemoryLimit)
	}
	for _, kv := range spec.Env {
		args = append(args, "-e", kv)
	}
	args = append(args, d.Image, "bash", "-c", d.containerScript(spec.Command))
	return args
}

// containerScript wraps the step command so it runs with the OpenFOAM
// environment sourced, from the mounted case directory.
func (d *Docker) containerScript(command string) string {
	return fmt.Sprintf("source %s && cd %s && %s", d.BashrcPath, caseMountPoint, command)
}

// containerName derives a docker-safe container name for a step
func containerName(spec Spec) string {
	raw := "foamchalak-" + spec.RunID + "-" + spec.Step
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, raw)
}

type dockerHandle struct {
	cmd       *exec.Cmd
	container string
	lines     chan domain.OutputLine
	done      chan struct{}
	doneOnce  sync.Once
	stopOnce  sync.Once
}

func (h *dockerHandle) Lines() <-chan domain.OutputLine { return h.lines }

func (h *dockerHandle) scan(r *os.File, spec Spec) {
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

// Wait implements Handle. docker run exits with the container's exit code,
// so nonzero solver exits come through unchanged.
func (h *dockerHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	h.doneOnce.Do(func() { close(h.done) })

	// --rm handles the normal path; this catches anything it missed.
	h.removeContainer()

	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("waiting for docker run: %w", err)
}

// Stop implements Handle. Container teardown already implies a forced stop,
// so the grace period is not honored: the container is removed immediately.
func (h *dockerHandle) Stop(grace time.Duration) error {
	h.stopOnce.Do(func() {
		h.removeContainer()
		go func() {
			// The docker run client should exit once the container is
			// gone; kill it if it lingers.
			select {
			case <-h.done:
			case <-time.After(5 * time.Second):
				if h.cmd.Process != nil {
					h.cmd.Process.Kill()
				}
			}
		}()
	})
	return nil
}

func (h *dockerHandle) removeContainer() {
	rm := exec.Command("docker", "rm", "-f", h.container)
	rm.Run() // Best effort
}
