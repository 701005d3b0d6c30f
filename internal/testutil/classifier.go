package testutil

import (
	"context"
	"image"
	"sync"

	"facemark/internal/attend"
	"facemark/internal/model"
)

// StubClassifier serves scripted predictions: queued answers first, then
// Default forever. Safe for concurrent use.
type StubClassifier struct {
	mu      sync.Mutex
	queue   []attend.Prediction
	Default attend.Prediction
	Err     error // Returned by every Recognize when set
	PingErr error
	calls   int
}

// NewStubClassifier creates a classifier whose Default answer is unknown.
func NewStubClassifier() *StubClassifier {
	return &StubClassifier{
		Default: attend.Prediction{Label: attend.UnknownLabel, Confidence: 100},
	}
}

// Queue appends answers served before Default kicks in.
func (c *StubClassifier) Queue(preds ...attend.Prediction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, preds...)
}

func (c *StubClassifier) Ping(context.Context) error { return c.PingErr }

func (c *StubClassifier) Recognize(_ context.Context, _ image.Image) (attend.Prediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.Err != nil {
		return attend.Prediction{Label: attend.UnknownLabel, Confidence: 100}, c.Err
	}
	if len(c.queue) > 0 {
		pred := c.queue[0]
		c.queue = c.queue[1:]
		return pred, nil
	}
	return c.Default, nil
}

// Calls returns how many Recognize calls were served.
func (c *StubClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// StubDetector returns a fixed face list for every frame.
type StubDetector struct {
	Faces []model.Rect
	Err   error
}

func (d *StubDetector) Detect(context.Context, image.Image) ([]model.Rect, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Faces, nil
}
