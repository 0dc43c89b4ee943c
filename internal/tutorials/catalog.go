// Package tutorials indexes loadable simulation cases under a tutorials
// tree. A directory counts as a case when it carries both a system/ and a
// constant/ subdirectory.
package tutorials

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Case is one loadable tutorial case
type Case struct {
	// Name is the path relative to the tutorials root, e.g.
	// "incompressible/simpleFoam/pitzDaily".
	Name string `json:"name"`
	// Solver is inferred from the path when a known solver name appears
	// in it, empty otherwise.
	Solver string `json:"solver,omitempty"`
	Path   string `json:"path"`
}

// Catalog lists the cases under one tutorials root
type Catalog struct {
	root string

	mu    sync.RWMutex
	cases []Case
}

// NewCatalog scans root and returns the catalog. A missing root is not an
// error; the catalog is simply empty until the directory appears.
func NewCatalog(root string) (*Catalog, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	c := &Catalog{root: abs}
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	return c, nil
}

// Root returns the tutorials root directory
func (c *Catalog) Root() string { return c.root }

// List returns all known cases sorted by name
func (c *Catalog) List() []Case {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Case(nil), c.cases...)
}

// Find returns the case with the given relative name
func (c *Catalog) Find(name string) (Case, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cs := range c.cases {
		if cs.Name == name {
			return cs, true
		}
	}
	return Case{}, false
}

// Refresh rescans the tutorials tree
func (c *Catalog) Refresh() error {
	if _, err := os.Stat(c.root); err != nil {
		if os.IsNotExist(err) {
			c.mu.Lock()
			c.cases = nil
			c.mu.Unlock()
			return nil
		}
		return err
	}

	var cases []Case
	err := filepath.WalkDir(c.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if !isCase(path) {
			return nil
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return nil
		}
		cases = append(cases, Case{
			Name:   rel,
			Solver: inferSolver(rel),
			Path:   path,
		})
		// Cases do not nest; no need to descend further.
		return filepath.SkipDir
	})
	if err != nil {
		return fmt.Errorf("scanning tutorials: %w", err)
	}

	sort.Slice(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })

	c.mu.Lock()
	c.cases = cases
	c.mu.Unlock()
	return nil
}

// isCase reports whether dir looks like an OpenFOAM case
func isCase(dir string) bool {
	for _, sub := range []string{"system", "constant"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

// inferSolver picks the solver name out of a tutorial path. Tutorial
// trees conventionally group cases by solver, so any path element ending
// in "Foam" is taken as the solver.
func inferSolver(rel string) string {
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasSuffix(part, "Foam") {
			return part
		}
	}
	return ""
}
