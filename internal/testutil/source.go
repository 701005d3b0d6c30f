package testutil

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"facemark/internal/attend"
	"facemark/internal/model"
)

// TestFrame builds a gray frame with the given face side-channel.
func TestFrame(seq uint64, at time.Time, w, h int, faces ...model.Rect) *attend.Frame {
	return &attend.Frame{
		Seq:        seq,
		CapturedAt: at,
		Image:      image.NewGray(image.Rect(0, 0, w, h)),
		Faces:      faces,
	}
}

// ScriptedSource replays a fixed list of frames and errors in order.
// After the script is exhausted it returns io.EOF, or blocks until the
// context is cancelled when HoldOpen is set (a live camera with nothing
// more to say). Safe for concurrent use.
type ScriptedSource struct {
	HoldOpen bool

	mu      sync.Mutex
	script  []scriptStep
	stopped bool
}

type scriptStep struct {
	frame *attend.Frame
	err   error
}

// NewScriptedSource creates a source serving the given frames in order.
func NewScriptedSource(frames ...*attend.Frame) *ScriptedSource {
	s := &ScriptedSource{}
	for _, f := range frames {
		s.script = append(s.script, scriptStep{frame: f})
	}
	return s
}

// QueueErr appends an error step to the script.
func (s *ScriptedSource) QueueErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, scriptStep{err: err})
}

// QueueFrame appends a frame step to the script.
func (s *ScriptedSource) QueueFrame(f *attend.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, scriptStep{frame: f})
}

func (s *ScriptedSource) Next(ctx context.Context) (*attend.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if len(s.script) == 0 {
		hold := s.HoldOpen
		s.mu.Unlock()
		if hold {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, io.EOF
	}
	step := s.script[0]
	s.script = s.script[1:]
	s.mu.Unlock()

	if step.err != nil {
		return nil, step.err
	}
	return step.frame, nil
}

func (s *ScriptedSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// Stopped reports whether Stop was called.
func (s *ScriptedSource) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// StubOpener hands out a fixed source, optionally failing the first
// FailFirst opens with OpenErr.
type StubOpener struct {
	Source    attend.FrameSource
	OpenErr   error
	FailFirst int

	mu    sync.Mutex
	opens int
}

func (o *StubOpener) Open(context.Context) (attend.FrameSource, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.OpenErr != nil && o.opens <= o.FailFirst {
		return nil, o.OpenErr
	}
	return o.Source, nil
}

// Opens returns how many Open calls were made.
func (o *StubOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}
