package journal

import (
	"fmt"

	"facemark/internal/config"
)

// NewJournalFromConfig opens the recognition journal described by the
// configuration. An empty path is an error; use ":memory:" explicitly
// for a throwaway journal.
func NewJournalFromConfig(cfg config.JournalConfig) (*SQLiteJournal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path not configured")
	}
	return Open(cfg.Path)
}
