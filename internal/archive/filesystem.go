package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"facemark/internal/attend"
)

// FSArchiver mirrors pushed objects into a directory tree. The key
// becomes the path under the root, so an archive of
// attendance/physics/2026-03-01.csv lands at
// <root>/attendance/physics/2026-03-01.csv.
type FSArchiver struct {
	root string
}

// NewFSArchiver creates a filesystem archiver rooted at the given path.
func NewFSArchiver(root string) (*FSArchiver, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive root: %w", err)
	}
	return &FSArchiver{root: root}, nil
}

// Put stores one object under the root, creating intermediate
// directories as needed. The write is atomic (temp file + rename) so a
// crashed push never leaves a truncated object behind.
func (a *FSArchiver) Put(key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	destPath := filepath.Join(a.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// ValidateSetup verifies that the archive root is a writable directory.
func (a *FSArchiver) ValidateSetup() error {
	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", a.root)
	}
	return nil
}

// validateKey rejects keys that would escape the root or collide with
// temp files. Keys come from our own walkers, so this only guards
// against bugs, not callers.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("archive key must not be empty: %w", attend.ErrInputInvalid)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("archive key %q has an invalid segment: %w", key, attend.ErrInputInvalid)
		}
	}
	return nil
}

// Compile-time check that FSArchiver implements the Archiver interface
var _ attend.Archiver = (*FSArchiver)(nil)
