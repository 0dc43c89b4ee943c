package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// LoadFoamEnv sources the OpenFOAM bashrc and returns the resulting
// environment as KEY=VALUE entries, suitable for NewLocal. The toolchain's
// binaries are only reachable through the PATH this sets up.
func LoadFoamEnv(ctx context.Context, bashrcPath string) ([]string, error) {
	if _, err := os.Stat(bashrcPath); err != nil {
		return nil, fmt.Errorf("bashrc not found at %s: %w", bashrcPath, err)
	}

	cmd := exec.CommandContext(ctx, "bash", "-c",
		fmt.Sprintf("source %s >/dev/null 2>&1 && env", bashrcPath))
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("sourcing %s: %w", bashrcPath, err)
	}

	return parseEnvOutput(out), nil
}

// parseEnvOutput splits `env` output into KEY=VALUE entries, dropping
// multi-line function bodies exported by bash.
func parseEnvOutput(out []byte) []string {
	var env []string
	for _, line := range strings.Split(string(out), "\n") {
		key, _, ok := strings.Cut(line, "=")
		if !ok || key == "" || strings.ContainsAny(key, " \t%(){}") {
			continue
		}
		env = append(env, line)
	}
	return env
}

// EnvValue returns the value of key within env, last entry winning
func EnvValue(env []string, key string) string {
	var val string
	prefix := key + "="
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, prefix); ok {
			val = v
		}
	}
	return val
}
