//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// binaryPath returns the path to the built CLI binary
func binaryPath(t *testing.T) string {
	t.Helper()
	paths := []string{
		"../foamchalak",
		"./foamchalak",
		filepath.Join(os.Getenv("GOPATH"), "bin", "foamchalak"),
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs
		}
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", "../foamchalak", "../cmd/foamchalak")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}

	abs, _ := filepath.Abs("../foamchalak")
	return abs
}

// createTestConfig writes a config whose pipeline runs plain shell
// commands, so the end-to-end flow is testable without OpenFOAM.
func createTestConfig(t *testing.T, runsDir, tutorialsDir string, steps string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.toml")

	config := `[web]
host = "127.0.0.1"
port = 8080

[runner]
backend = "local"
stop_grace_seconds = 2
runs_dir = "` + runsDir + `"
bashrc_path = ""

[case]
tutorials_dir = "` + tutorialsDir + `"

[cleanup]
enabled = false

` + steps

	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return configPath
}

// makeCase creates a minimal case directory with the marker
// subdirectories the tutorial catalog looks for.
func makeCase(t *testing.T, root, rel string) string {
	t.Helper()
	dir := filepath.Join(root, rel)
	for _, sub := range []string{"system", "constant"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}
