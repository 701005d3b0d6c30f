package archive

import (
	"fmt"

	"facemark/internal/attend"
	"facemark/internal/config"
)

// NewArchiverFromConfig creates an Archiver implementation based on the
// archive config type.
func NewArchiverFromConfig(cfg config.ArchiveConfig) (attend.Archiver, error) {
	switch cfg.Type {
	case "", "none":
		return nil, fmt.Errorf("archive is not configured, set archive.type to filesystem or s3")
	case "memory":
		return NewMemoryArchiver(), nil
	case "filesystem":
		if cfg.FSArchiveRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_archive_root to be set")
		}
		return NewFSArchiver(cfg.FSArchiveRoot)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 archive requires s3_bucket to be set")
		}
		return NewS3Archiver(cfg)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
