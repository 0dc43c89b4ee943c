package pipeline

import (
	"fmt"

	"github.com/haldardhruv/foamchalak/internal/domain"
)

// DefaultSolver is used when no solver is configured
const DefaultSolver = "simpleFoam"

// DefaultSteps returns the standard OpenFOAM toolchain pipeline: generate
// the mesh, check it (diagnostic only), then run the solver. checkMesh
// reports quality problems via a nonzero exit, which should not stop the
// solve, so it carries the continue-on-failure policy.
func DefaultSteps(solver string) []domain.StepDefinition {
	if solver == "" {
		solver = DefaultSolver
	}
	return []domain.StepDefinition{
		{Name: "mesh-generate", Command: "blockMesh", Policy: domain.PolicyAbort},
		{Name: "mesh-check", Command: "checkMesh", Policy: domain.PolicyContinueOnFailure},
		{Name: "solve", Command: solver, Policy: domain.PolicyAbort},
	}
}

// ValidateSteps checks a step table before a runner accepts it. Empty
// policies are normalized to abort.
func ValidateSteps(steps []domain.StepDefinition) error {
	if len(steps) == 0 {
		return fmt.Errorf("pipeline has no steps")
	}
	seen := make(map[string]bool, len(steps))
	for i := range steps {
		s := &steps[i]
		if s.Name == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate step name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Command == "" {
			return fmt.Errorf("step %q has no command", s.Name)
		}
		switch s.Policy {
		case domain.PolicyAbort, domain.PolicyContinueOnFailure:
		case "":
			s.Policy = domain.PolicyAbort
		default:
			return fmt.Errorf("step %q has unknown failure policy %q", s.Name, s.Policy)
		}
	}
	return nil
}
