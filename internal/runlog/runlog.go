// Package runlog writes the durable per-run log file: a header, one line
// per published output line in publish order, and a trailer summarizing the
// terminal state.
package runlog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/haldardhruv/foamchalak/internal/domain"
)

const separator = "================================================================================"

// Writer appends to one run's log file. Safe for use as the broadcaster's
// sink while the control surface reads the file concurrently (every write
// is flushed for tail -f).
type Writer struct {
	f           *os.File
	path        string
	mu          sync.Mutex
	trailerDone bool
}

// Create opens the log file and writes the header
func Create(path, runID, workDir string, start time.Time) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating run log: %w", err)
	}

	header := fmt.Sprintf("FoamChalak simulation log\nRun:       %s\nStarted:   %s\nDirectory: %s\n%s\n",
		runID, start.Format(time.RFC3339), workDir, separator)
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return nil, err
	}
	f.Sync()

	return &Writer{f: f, path: path}, nil
}

// Path returns the log file location
func (w *Writer) Path() string { return w.path }

// WriteLine appends one output line. Implements broadcast.LineSink.
func (w *Writer) WriteLine(line domain.OutputLine) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return os.ErrClosed
	}
	if _, err := w.f.WriteString(line.Text + "\n"); err != nil {
		return err
	}
	return w.f.Sync()
}

// WriteTrailer records the terminal summary and closes the file. Written at
// most once; later calls are no-ops so every termination path can call it.
func (w *Writer) WriteTrailer(run *domain.Run) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.trailerDone || w.f == nil {
		return nil
	}
	w.trailerDone = true

	var b strings.Builder
	b.WriteString(separator + "\n")
	if run.EndedAt != nil {
		fmt.Fprintf(&b, "Finished:  %s\n", run.EndedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Duration:  %s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "State:     %s\n", run.State)
	if run.Reason != "" {
		fmt.Fprintf(&b, "Reason:    %s\n", run.Reason)
	}
	b.WriteString("Steps:\n")
	for _, s := range run.Steps {
		if s.ExitCode != nil {
			fmt.Fprintf(&b, "  %-16s %-10s exit %d\n", s.Name, s.Status, *s.ExitCode)
		} else {
			fmt.Fprintf(&b, "  %-16s %-10s\n", s.Name, s.Status)
		}
	}

	if _, err := w.f.WriteString(b.String()); err != nil {
		w.f.Close()
		w.f = nil
		return err
	}
	err := w.f.Close()
	w.f = nil
	return err
}
