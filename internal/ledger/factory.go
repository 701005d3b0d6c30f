package ledger

import (
	"fmt"
	"time"

	"facemark/internal/attend"
	"facemark/internal/config"
)

// NewLedgerFromConfig creates a Ledger implementation based on the
// ledger config type, wrapping it in a retry decorator when configured.
func NewLedgerFromConfig(cfg config.LedgerConfig, dataDir string, log attend.Logger) (attend.Ledger, error) {
	var inner attend.Ledger
	switch cfg.Type {
	case "memory":
		inner = NewMemoryLedger()
	case "csv":
		l, err := NewCSVLedger(dataDir, log)
		if err != nil {
			return nil, err
		}
		inner = l
	default:
		return nil, fmt.Errorf("unknown ledger type: %s", cfg.Type)
	}

	if cfg.RetryAttempts > 1 {
		delay := time.Duration(cfg.RetryDelaySeconds) * time.Second
		if delay <= 0 {
			delay = time.Second
		}
		return NewRetryLedger(inner, cfg.RetryAttempts, delay, log), nil
	}
	return inner, nil
}
