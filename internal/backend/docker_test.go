package backend

import (
	"strings"
	"testing"
)

func TestDocker_RunArgs(t *testing.T) {
	d := NewDocker("haldardhruv/ubuntu_noble_openfoam:v2412", "/usr/lib/openfoam/openfoam2412/etc/bashrc")

	spec := Spec{
		RunID:   "run_20250101_120000",
		Step:    "solve",
		Command: "simpleFoam",
		WorkDir: "/home/user/cases/motorBike",
	}
	args := d.runArgs(spec, containerName(spec))

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"run --rm",
		"--name foamchalak-run_20250101_120000-solve",
		"-v /home/user/cases/motorBike:/case",
		"-w /case",
		"--memory 4g",
		"haldardhruv/ubuntu_noble_openfoam:v2412",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}

	script := args[len(args)-1]
	if script != "source /usr/lib/openfoam/openfoam2412/etc/bashrc && cd /case && simpleFoam" {
		t.Errorf("script = %q", script)
	}
	if args[len(args)-4] != d.Image {
		t.Errorf("image not positioned before shell: %v", args)
	}
}

func TestDocker_RunArgsNoMemoryLimit(t *testing.T) {
	d := NewDocker("img", "/opt/openfoam12/etc/bashrc")
	d.MemoryLimit = ""

	args := d.runArgs(Spec{RunID: "r", Step: "s", Command: "blockMesh", WorkDir: "/tmp/case"}, "n")
	if strings.Contains(strings.Join(args, " "), "--memory") {
		t.Errorf("unexpected --memory in %v", args)
	}
}

func TestDocker_RunArgsEnv(t *testing.T) {
	d := NewDocker("img", "/opt/openfoam12/etc/bashrc")

	spec := Spec{RunID: "r", Step: "s", Command: "blockMesh", WorkDir: "/tmp/case", Env: []string{"FOAM_USER_RUN=/tmp"}}
	joined := strings.Join(d.runArgs(spec, "n"), " ")
	if !strings.Contains(joined, "-e FOAM_USER_RUN=/tmp") {
		t.Errorf("env not forwarded: %s", joined)
	}
}

func TestContainerName_Sanitized(t *testing.T) {
	name := containerName(Spec{RunID: "run_2025/01", Step: "mesh check"})
	if name != "foamchalak-run_2025-01-mesh-check" {
		t.Errorf("name = %q", name)
	}
}
