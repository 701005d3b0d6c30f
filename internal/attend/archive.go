package attend

import "io"

// Archiver provides an interface for offsite archive backends. Pushes
// stream through io.Reader so large evidence files never load fully
// into memory.
type Archiver interface {
	// Put stores one object under a slash-separated key. Storing the
	// same key twice overwrites; pushes are re-runnable.
	// size is the number of bytes that will be read from r.
	Put(key string, r io.Reader, size int64) error

	// ValidateSetup verifies that the archive is accessible and
	// properly configured.
	ValidateSetup() error
}
