package faceservice

import (
	"fmt"
	"time"

	"facemark/internal/attend"
	"facemark/internal/config"
)

// NewFromConfig creates the classifier and detector based on the
// configuration type. Both roles are served by the same backend.
func NewFromConfig(cfg config.ClassifierConfig) (attend.Classifier, attend.Detector, error) {
	switch cfg.Type {
	case "remote", "":
		c := NewClient(cfg.URL, time.Duration(cfg.TimeoutSeconds)*time.Second)
		return c, c, nil
	case "static":
		s := NewStatic(cfg.StaticLabel, cfg.StaticConfidence)
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown classifier type: %q", cfg.Type)
	}
}
