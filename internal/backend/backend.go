// Package backend abstracts "start a command, stream its output, wait for
// the exit code, stop it" over two strategies: a local child process and an
// ephemeral Docker container.
package backend

import (
	"context"
	"time"

	"github.com/haldardhruv/foamchalak/internal/domain"
)

// Spec describes one command invocation
type Spec struct {
	RunID   string
	Step    string
	Command string
	WorkDir string
	Env     []string // extra KEY=VALUE entries appended to the environment
}

// Handle controls a started command.
//
// Lines yields the merged stdout/stderr of the process one line at a time
// and closes when the process closes its output streams. Ordering is
// preserved within each stream but not across stdout and stderr. The
// sequence cannot be restarted; a new Start yields a new one.
type Handle interface {
	Lines() <-chan domain.OutputLine

	// Wait blocks until the process exits and returns its exit code.
	// A nonzero exit is a normal terminal value, not an error; Wait only
	// errors on infrastructure failures.
	Wait() (int, error)

	// Stop requests termination: a polite signal first, then a forced kill
	// once the grace period elapses. Safe to call from another goroutine
	// and safe to call more than once.
	Stop(grace time.Duration) error
}

// Backend starts commands
type Backend interface {
	Name() string
	Start(ctx context.Context, spec Spec) (Handle, error)
}
