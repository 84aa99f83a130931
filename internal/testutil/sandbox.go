package testutil

import (
	"os"
	"path/filepath"
)

// Sandbox is a throwaway media directory for tests that drive the file
// upload drivers against the real filesystem.
type Sandbox struct {
	Root string
}

// NewSandbox creates an empty sandbox under the system temp directory.
func NewSandbox() (*Sandbox, error) {
	dir, err := os.MkdirTemp("", "daoservice_media")
	if err != nil {
		return nil, err
	}
	return &Sandbox{Root: dir}, nil
}

// Path resolves a slash separated name below the sandbox root.
func (s *Sandbox) Path(name string) string {
	return filepath.Join(s.Root, filepath.FromSlash(name))
}

// ReadFile returns the contents of the named file, including files in nested
// directories created by the code under test.
func (s *Sandbox) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

// Cleanup deletes the sandbox tree.
func (s *Sandbox) Cleanup() error {
	return os.RemoveAll(s.Root)
}
