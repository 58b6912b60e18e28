// Package workspace manages per-job scratch directories under a shared
// root, so concurrent workers never collide on temp file names and every
// job's intermediate files are cleaned up as one unit.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Manager creates and tears down per-job scoped directories under Root.
type Manager struct {
	root string
}

// NewManager creates a Manager rooted at root. root is created if it does
// not already exist.
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("workspace: create root %s: %w", root, err)
	}
	return &Manager{root: root}, nil
}

// Job is a scratch directory exclusively owned by one job run. Callers
// write input and intermediate files into it and call Close when the job
// finishes (success or failure) to remove everything underneath it.
type Job struct {
	dir string
}

// Open creates a fresh, empty directory scoped to jobID. A random suffix
// is appended so a retried job never collides with a stale directory left
// behind by a prior crashed attempt.
func (m *Manager) Open(jobID string) (*Job, error) {
	dir := filepath.Join(m.root, jobID+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("workspace: create job dir: %w", err)
	}
	return &Job{dir: dir}, nil
}

// Dir returns the job's scratch directory path.
func (j *Job) Dir() string {
	return j.dir
}

// WriteFile materializes data under the job's scratch directory using
// name as the file name, returning the full path.
func (j *Job) WriteFile(name string, data io.Reader) (string, error) {
	path := filepath.Join(j.dir, name)

	f, err := os.Create(path) // #nosec G304 - path is confined to a job-scoped dir under workspace root
	if err != nil {
		return "", fmt.Errorf("workspace: create %s: %w", name, err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("workspace: write %s: %w", name, err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("workspace: close %s: %w", name, err)
	}

	return path, nil
}

// Close removes the job's entire scratch directory and everything under
// it, regardless of how processing ended.
func (j *Job) Close() error {
	if err := os.RemoveAll(j.dir); err != nil {
		return fmt.Errorf("workspace: remove %s: %w", j.dir, err)
	}
	return nil
}
