package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/haldardhruv/foamchalak/internal/domain"
)

// Config holds all application configuration
type Config struct {
	Web      WebConfig      `toml:"web"`
	Case     CaseConfig     `toml:"case"`
	Runner   RunnerConfig   `toml:"runner"`
	Docker   DockerConfig   `toml:"docker"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Cleanup  CleanupConfig  `toml:"cleanup"`
}

// WebConfig holds control surface settings
type WebConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// CaseConfig holds case and tutorial locations
type CaseConfig struct {
	// Dir is the default case directory a run uses when the request
	// names none.
	Dir string `toml:"dir"`
	// TutorialsDir is scanned for loadable tutorial cases.
	TutorialsDir string `toml:"tutorials_dir"`
}

// RunnerConfig holds execution settings
type RunnerConfig struct {
	// Backend selects where step commands run: "local" or "docker".
	Backend          string `toml:"backend"`
	StopGraceSeconds int    `toml:"stop_grace_seconds"`
	// RunsDir is where provisioned run directories are created.
	RunsDir string `toml:"runs_dir"`
	// BashrcPath is the OpenFOAM environment file sourced for local runs.
	BashrcPath string `toml:"bashrc_path"`
}

// DockerConfig holds container execution settings
type DockerConfig struct {
	Image string `toml:"image"`
	// BashrcPath is the environment file inside the container.
	BashrcPath  string `toml:"bashrc_path"`
	MemoryLimit string `toml:"memory_limit"`
}

// PipelineConfig holds the step table. An empty Steps list means the
// built-in mesh/check/solve pipeline with the configured solver.
type PipelineConfig struct {
	Solver string       `toml:"solver"`
	Steps  []StepConfig `toml:"steps"`
}

// StepConfig is one configured pipeline step
type StepConfig struct {
	Name              string `toml:"name"`
	Command           string `toml:"command"`
	ContinueOnFailure bool   `toml:"continue_on_failure"`
}

// CleanupConfig holds stale run directory cleanup settings
type CleanupConfig struct {
	Enabled     bool   `toml:"enabled"`
	Schedule    string `toml:"schedule"`
	MaxAgeHours int    `toml:"max_age_hours"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Case: CaseConfig{
			Dir:          filepath.Join(home, "foamchalak", "case"),
			TutorialsDir: "/usr/lib/openfoam/openfoam2412/tutorials",
		},
		Runner: RunnerConfig{
			Backend:          "local",
			StopGraceSeconds: 5,
			RunsDir:          filepath.Join(home, "foamchalak", "runs"),
			BashrcPath:       "/usr/lib/openfoam/openfoam2412/etc/bashrc",
		},
		Docker: DockerConfig{
			Image:       "opencfd/openfoam-default:2412",
			BashrcPath:  "/usr/lib/openfoam/openfoam2412/etc/bashrc",
			MemoryLimit: "4g",
		},
		Pipeline: PipelineConfig{
			Solver: "simpleFoam",
		},
		Cleanup: CleanupConfig{
			Enabled:     true,
			Schedule:    "0 3 * * *",
			MaxAgeHours: 72,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.Case.Dir = ExpandPath(cfg.Case.Dir)
	cfg.Case.TutorialsDir = ExpandPath(cfg.Case.TutorialsDir)
	cfg.Runner.RunsDir = ExpandPath(cfg.Runner.RunsDir)
	cfg.Runner.BashrcPath = ExpandPath(cfg.Runner.BashrcPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration back to a TOML file, creating parent
// directories as needed.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects values the rest of the application cannot work with
func (c *Config) Validate() error {
	switch c.Runner.Backend {
	case "local", "docker":
	default:
		return fmt.Errorf("unknown runner backend %q (want local or docker)", c.Runner.Backend)
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port %d", c.Web.Port)
	}
	if c.Runner.StopGraceSeconds <= 0 {
		return fmt.Errorf("stop_grace_seconds must be positive")
	}
	if c.Runner.Backend == "docker" && c.Docker.Image == "" {
		return fmt.Errorf("docker backend requires an image")
	}
	return nil
}

// Steps converts the configured pipeline into step definitions, falling
// back to the built-in pipeline when none are configured.
func (c *Config) Steps() []domain.StepDefinition {
	if len(c.Pipeline.Steps) == 0 {
		return nil
	}
	steps := make([]domain.StepDefinition, 0, len(c.Pipeline.Steps))
	for _, s := range c.Pipeline.Steps {
		policy := domain.PolicyAbort
		if s.ContinueOnFailure {
			policy = domain.PolicyContinueOnFailure
		}
		steps = append(steps, domain.StepDefinition{Name: s.Name, Command: s.Command, Policy: policy})
	}
	return steps
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "foamchalak", "config.toml")
}
