package attend

import (
	"context"
	"image"

	"facemark/internal/model"
)

// UnknownLabel is the label a classifier returns when no trained identity
// matched the face.
const UnknownLabel = -1

// Prediction is a single classifier answer. Confidence is a distance
// score: LOWER means a closer match, and 0 is a perfect match. A failed
// prediction conventionally carries confidence 100.
type Prediction struct {
	Label      int
	Confidence float64
}

// Matches reports whether a prediction clears the acceptance policy for
// the given threshold (a percentage, 0..100). A prediction matches when
// the label is known and the distance is strictly below 100-threshold.
// With the default threshold of 80 only distances below 20.0 are
// accepted; a distance of exactly 20.0 is rejected.
func Matches(pred Prediction, threshold int) bool {
	return pred.Label != UnknownLabel && pred.Confidence < float64(100-threshold)
}

// Classifier identifies a cropped face region.
type Classifier interface {
	// Ping reports whether the classifier is ready to serve predictions.
	// A session that cannot ping its classifier runs detection-only.
	Ping(ctx context.Context) error

	// Recognize classifies a face region. A face that matches no trained
	// identity yields UnknownLabel, not an error; errors are reserved for
	// transport or classifier failures.
	Recognize(ctx context.Context, face image.Image) (Prediction, error)
}

// Detector locates faces in a full frame. Sources that carry their own
// face side-channel do not need one.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]model.Rect, error)
}
