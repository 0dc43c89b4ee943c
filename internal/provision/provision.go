// Package provision manages run directories: creating fresh timestamped
// directories under the runs root, seeding them from a case template, and
// cleaning up stale ones.
package provision

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Provisioner creates and seeds run directories under a single root
type Provisioner struct {
	root string
}

// New creates a provisioner rooted at dir, creating it if needed
func New(root string) (*Provisioner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating runs root: %w", err)
	}
	return &Provisioner{root: abs}, nil
}

// Root returns the runs root directory
func (p *Provisioner) Root() string { return p.root }

// NewRunDir creates a fresh empty directory named after the current time.
// The counter suffix resolves collisions when two runs start within the
// same second.
func (p *Provisioner) NewRunDir() (string, error) {
	base := time.Now().Format("20060102_150405")
	for i := 0; ; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		dir := filepath.Join(p.root, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("creating run directory: %w", err)
		}
	}
}

// CloneCase provisions a new run directory seeded with a copy of the case
// at src. File modes are preserved so Allrun-style scripts stay executable.
func (p *Provisioner) CloneCase(src string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("case directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("case %s is not a directory", src)
	}

	dir, err := p.NewRunDir()
	if err != nil {
		return "", err
	}
	if err := copyTree(src, dir); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("copying case: %w", err)
	}
	return dir, nil
}

// CleanupStale removes run directories older than maxAge. Directories in
// keep are never removed, so the active run and the most recent results
// survive. Returns the number of directories removed.
func (p *Provisioner) CleanupStale(maxAge time.Duration, keep map[string]bool) (int, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(p.root, e.Name())
		if keep[dir] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		// Symlinks and other irregular files are not part of case
		// templates; skip them rather than fail the clone.
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
