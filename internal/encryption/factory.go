package encryption

import (
	"fmt"

	"facemark/internal/attend"
	"facemark/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
func NewEncryptorFromConfig(cfg config.EvidenceConfig) (attend.Encryptor, error) {
	switch cfg.Encryptor {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown evidence encryptor type: %q", cfg.Encryptor)
	}
}
