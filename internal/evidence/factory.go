package evidence

import (
	"facemark/internal/attend"
	"facemark/internal/config"
)

// NewStoreFromConfig builds the evidence store described by the
// configuration. enc is only consulted when encryption at rest is on.
func NewStoreFromConfig(cfg config.EvidenceConfig, enc attend.Encryptor) (attend.EvidenceStore, error) {
	return NewFileStore(cfg.Dir, enc, cfg.Encrypt)
}
