package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haldardhruv/foamchalak/internal/domain"
)

func TestLocal_StartAndDrain(t *testing.T) {
	l := NewLocal(nil)
	dir := t.TempDir()

	h, err := l.Start(context.Background(), Spec{
		RunID:   "run_test",
		Step:    "echo",
		Command: "echo one; echo two",
		WorkDir: dir,
	})
	if err != nil {
		t.Fatal(err)
	}

	var lines []string
	for line := range h.Lines() {
		if line.RunID != "run_test" {
			t.Errorf("RunID = %q, want run_test", line.RunID)
		}
		if line.Step != "echo" {
			t.Errorf("Step = %q, want echo", line.Step)
		}
		lines = append(lines, line.Text)
	}

	code, err := h.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}

	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("lines = %v, want [one two]", lines)
	}
}

func TestLocal_NonzeroExitIsNotAnError(t *testing.T) {
	l := NewLocal(nil)

	h, err := l.Start(context.Background(), Spec{
		RunID:   "run_test",
		Step:    "fail",
		Command: "sh -c 'exit 3'",
		WorkDir: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}

	for range h.Lines() {
	}

	code, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v, nonzero exit must not error", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestLocal_ShellBuiltinExitCodeIsData(t *testing.T) {
	l := NewLocal(nil)

	// "exit" is a bash builtin, not a binary on PATH; it must still run
	// and surface its exit code instead of failing to start.
	h, err := l.Start(context.Background(), Spec{
		RunID:   "run_test",
		Step:    "fail",
		Command: "exit 3",
		WorkDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Start() error = %v, builtins must reach bash", err)
	}

	for range h.Lines() {
	}

	code, err := h.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestLocal_CompoundCommandRuns(t *testing.T) {
	l := NewLocal(nil)

	h, err := l.Start(context.Background(), Spec{
		RunID:   "run_test",
		Step:    "compound",
		Command: "cd /tmp && pwd",
		WorkDir: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}

	var lines []string
	for line := range h.Lines() {
		lines = append(lines, line.Text)
	}
	if code, _ := h.Wait(); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if len(lines) != 1 || lines[0] != "/tmp" {
		t.Errorf("lines = %v, want [/tmp]", lines)
	}
}

func TestLocal_MergesStderr(t *testing.T) {
	l := NewLocal(nil)

	h, err := l.Start(context.Background(), Spec{
		RunID:   "run_test",
		Step:    "stderr",
		Command: "echo err >&2",
		WorkDir: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}

	var lines []string
	for line := range h.Lines() {
		lines = append(lines, line.Text)
	}
	h.Wait()

	if len(lines) != 1 || lines[0] != "err" {
		t.Errorf("lines = %v, want [err]", lines)
	}
}

func TestLocal_CommandNotFound(t *testing.T) {
	l := NewLocal(nil)

	_, err := l.Start(context.Background(), Spec{
		RunID:   "run_test",
		Step:    "missing",
		Command: "definitely-not-a-real-binary-xyz",
		WorkDir: t.TempDir(),
	})

	var notFound *domain.CommandNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want CommandNotFoundError", err)
	}
	if notFound.Command != "definitely-not-a-real-binary-xyz" {
		t.Errorf("Command = %q", notFound.Command)
	}
}

func TestLocal_RelativePathCommandNotFound(t *testing.T) {
	l := NewLocal(nil)

	_, err := l.Start(context.Background(), Spec{
		RunID:   "run_test",
		Step:    "allrun",
		Command: "./Allrun",
		WorkDir: t.TempDir(),
	})

	var notFound *domain.CommandNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want CommandNotFoundError", err)
	}
}

func TestLocal_StopTerminatesProcess(t *testing.T) {
	l := NewLocal(nil)

	h, err := l.Start(context.Background(), Spec{
		RunID:   "run_test",
		Step:    "sleep",
		Command: "sleep 60",
		WorkDir: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}

	waitDone := make(chan int, 1)
	go func() {
		for range h.Lines() {
		}
		code, _ := h.Wait()
		waitDone <- code
	}()

	if err := h.Stop(time.Second); err != nil {
		t.Fatal(err)
	}

	select {
	case code := <-waitDone:
		if code == 0 {
			t.Errorf("exit code = 0, want nonzero after stop")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Stop")
	}
}

func TestLocal_StopIsIdempotent(t *testing.T) {
	l := NewLocal(nil)

	h, err := l.Start(context.Background(), Spec{
		RunID:   "run_test",
		Step:    "sleep",
		Command: "sleep 60",
		WorkDir: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		for range h.Lines() {
		}
	}()

	if err := h.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := h.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	h.Wait()
}

func TestLocal_ExtraEnvIsVisible(t *testing.T) {
	l := NewLocal([]string{"FOAM_TEST_VAR=hello"})

	h, err := l.Start(context.Background(), Spec{
		RunID:   "run_test",
		Step:    "env",
		Command: "echo $FOAM_TEST_VAR",
		WorkDir: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}

	var lines []string
	for line := range h.Lines() {
		lines = append(lines, line.Text)
	}
	h.Wait()

	if len(lines) != 1 || lines[0] != "hello" {
		t.Errorf("lines = %v, want [hello]", lines)
	}
}
