package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haldardhruv/foamchalak/internal/domain"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Web.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Web.Port)
	}
	if cfg.Runner.Backend != "local" {
		t.Errorf("default backend = %q, want local", cfg.Runner.Backend)
	}
	if cfg.Pipeline.Solver != "simpleFoam" {
		t.Errorf("default solver = %q", cfg.Pipeline.Solver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Web.Port)
	}
}

func TestLoad_OverridesAndPipeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[web]
host = "0.0.0.0"
port = 9000

[runner]
backend = "docker"

[docker]
image = "opencfd/openfoam-default:2412"

[pipeline]
solver = "pimpleFoam"

[[pipeline.steps]]
name = "mesh"
command = "blockMesh"

[[pipeline.steps]]
name = "check"
command = "checkMesh"
continue_on_failure = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Web.Port)
	}
	if cfg.Runner.Backend != "docker" {
		t.Errorf("backend = %q, want docker", cfg.Runner.Backend)
	}
	// Untouched sections keep their defaults.
	if cfg.Cleanup.MaxAgeHours != 72 {
		t.Errorf("max_age_hours = %d, want default 72", cfg.Cleanup.MaxAgeHours)
	}

	steps := cfg.Steps()
	if len(steps) != 2 {
		t.Fatalf("got %d steps", len(steps))
	}
	if steps[0].Policy != domain.PolicyAbort {
		t.Errorf("mesh policy = %q, want abort", steps[0].Policy)
	}
	if steps[1].Policy != domain.PolicyContinueOnFailure {
		t.Errorf("check policy = %q, want continue_on_failure", steps[1].Policy)
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[runner]\nbackend = \"podman\"\n"), 0o644)

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "backend") {
		t.Errorf("err = %v, want unknown backend error", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Web.Port = 9999
	cfg.Pipeline.Solver = "icoFoam"
	if err := Save(cfg, path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Web.Port != 9999 {
		t.Errorf("port = %d, want 9999", loaded.Web.Port)
	}
	if loaded.Pipeline.Solver != "icoFoam" {
		t.Errorf("solver = %q, want icoFoam", loaded.Pipeline.Solver)
	}
}

func TestSteps_EmptyMeansBuiltin(t *testing.T) {
	if steps := Default().Steps(); steps != nil {
		t.Errorf("expected nil for unconfigured steps, got %v", steps)
	}
}

func TestStore_UpdateVisibleToReaders(t *testing.T) {
	store := NewStore(Default())

	cfg := store.Get()
	cfg.Docker.Image = "opencfd/openfoam-default:2506"
	cfg.Pipeline.Solver = "pimpleFoam"
	store.Update(cfg)

	got := store.Get()
	if got.Docker.Image != "opencfd/openfoam-default:2506" {
		t.Errorf("image = %q, update did not stick", got.Docker.Image)
	}
	if got.Pipeline.Solver != "pimpleFoam" {
		t.Errorf("solver = %q", got.Pipeline.Solver)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := NewStore(Default())

	cfg := store.Get()
	cfg.Web.Port = 1

	if store.Get().Web.Port == 1 {
		t.Error("mutating a Get() result leaked into the store")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandPath("~/runs"); got != filepath.Join(home, "runs") {
		t.Errorf("ExpandPath = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath = %q", got)
	}
}
