package attend

import (
	"context"
	"image"
	"time"

	"facemark/internal/model"
)

// Frame is one captured image plus any face regions the source already
// located. Faces is nil when the source performs no detection of its own;
// a source that detected nothing sets an empty, non-nil slice.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Image      image.Image
	Faces      []model.Rect
}

// FrameSource supplies frames from an attached camera or stream.
type FrameSource interface {
	// Next blocks until the next frame is available. It returns io.EOF
	// when the stream ends and wraps ErrDeviceFailure when the device
	// stops delivering.
	Next(ctx context.Context) (*Frame, error)

	// Stop releases the underlying device or stream. Next calls after
	// Stop fail.
	Stop() error
}

// SourceOpener attaches to the configured frame source. A fresh
// FrameSource is opened for each session and released when it stops.
// Open failures wrap ErrDeviceFailure and are retried a bounded number
// of times by the session.
type SourceOpener interface {
	Open(ctx context.Context) (FrameSource, error)
}
