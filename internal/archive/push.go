package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"facemark/internal/attend"
)

// PushStats summarizes one archive push.
type PushStats struct {
	Files int
	Bytes int64
}

// Push uploads the student registry, the attendance partitions and the
// alert evidence to the archive. Keys mirror the on-disk layout under
// students/, attendance/ and alerts/, so repeated pushes overwrite in
// place and a push is safe to re-run after a failure.
func Push(arch attend.Archiver, studentsDir, attendanceDir, evidenceDir string, log attend.Logger) (PushStats, error) {
	var stats PushStats
	trees := []struct {
		dir       string
		keyPrefix string
	}{
		{studentsDir, "students"},
		{attendanceDir, "attendance"},
		{evidenceDir, "alerts"},
	}

	for _, tree := range trees {
		if tree.dir == "" {
			continue
		}
		if err := pushTree(arch, tree.dir, tree.keyPrefix, log, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func pushTree(arch attend.Archiver, dir, keyPrefix string, log attend.Logger, stats *PushStats) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		// Nothing recorded yet under this tree.
		return nil
	}

	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			// Leftover temp files from interrupted atomic writes.
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(keyPrefix, filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}

		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", p, err)
		}
		defer f.Close()

		if err := arch.Put(key, f, info.Size()); err != nil {
			return fmt.Errorf("failed to archive %s: %w", key, err)
		}

		log.Debug("archived object", "key", key, "bytes", info.Size())
		stats.Files++
		stats.Bytes += info.Size()
		return nil
	})
}
