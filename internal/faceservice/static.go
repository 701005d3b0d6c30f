package faceservice

import (
	"context"
	"image"

	"facemark/internal/attend"
	"facemark/internal/model"
)

// Static is a classifier that always answers with one configured
// prediction and reports every frame as a single full-frame face. Useful
// for demos and wiring checks without a face service running.
type Static struct {
	pred attend.Prediction
}

var (
	_ attend.Classifier = (*Static)(nil)
	_ attend.Detector   = (*Static)(nil)
)

// NewStatic creates a static classifier answering with the given
// label and confidence.
func NewStatic(label int, confidence float64) *Static {
	return &Static{pred: attend.Prediction{Label: label, Confidence: confidence}}
}

func (s *Static) Ping(ctx context.Context) error {
	return nil
}

func (s *Static) Recognize(ctx context.Context, face image.Image) (attend.Prediction, error) {
	return s.pred, nil
}

func (s *Static) Detect(ctx context.Context, frame image.Image) ([]model.Rect, error) {
	return []model.Rect{model.RectOf(frame.Bounds())}, nil
}
