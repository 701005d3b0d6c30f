package attend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// expiryPollInterval is how often a running session checks the alert for
// expiry. Alert durations are tens of seconds, so one second keeps the
// state machine visibly fresh.
const expiryPollInterval = time.Second

// batchFlushInterval is how often buffered marks are flushed while a
// session runs with batching enabled.
const batchFlushInterval = time.Second

// FrameResult is published to feed subscribers after each processed
// frame. Outcomes is nil for frames with no faces.
type FrameResult struct {
	Seq      uint64    `json:"seq"`
	At       time.Time `json:"at"`
	Outcomes []Outcome `json:"outcomes,omitempty"`
}

// Session is one scanning run: a capture worker pulling frames through
// the pipeline, an alert expiry poller, and an optional batch flusher.
// All goroutines share one cancellation context; Stop cancels it and
// waits for them to drain.
type Session struct {
	id      string
	subject string
	mode    string

	source   FrameSource
	pipeline *Pipeline
	alerts   *AlertManager
	journal  Journal
	clock    Clock
	log      Logger
	metrics  Recorder
	batch    *BatchWriter // Nil when marks go straight to the ledger
	publish  func(FrameResult)

	retries    int
	retryDelay time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	mu      sync.Mutex
	running bool
	err     error
}

// start launches the session goroutines. Called once by the service.
func (s *Session) start(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.captureLoop(ctx)
	go s.expiryLoop(ctx)
	if s.batch != nil {
		s.wg.Add(1)
		go s.flushLoop(ctx)
	}
}

// captureLoop pulls frames until the context is cancelled, the stream
// ends, or the source fails terminally. Transient source errors are
// retried a bounded number of times with a fixed delay.
func (s *Session) captureLoop(ctx context.Context) {
	defer s.wg.Done()
	defer s.finish()

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := s.source.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if errors.Is(err, io.EOF) {
				s.log.Info("frame stream ended", "session", s.id)
				return
			}
			failures++
			s.metrics.SourceRetry()
			if failures >= s.retries {
				s.setErr(fmt.Errorf("frame source failed after %d attempts: %w", failures, err))
				s.log.Error("frame source failed, stopping session",
					"session", s.id, "attempts", failures, "error", err)
				return
			}
			s.log.Warn("frame source error, retrying",
				"session", s.id, "attempt", failures, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
			continue
		}
		failures = 0

		outcomes := s.pipeline.Process(ctx, frame)
		if s.publish != nil {
			s.publish(FrameResult{Seq: frame.Seq, At: frame.CapturedAt, Outcomes: outcomes})
		}
	}
}

func (s *Session) expiryLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(expiryPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.alerts.ExpireIfDue(s.clock.Now()) {
				s.log.Info("alert expired", "session", s.id)
			}
		}
	}
}

func (s *Session) flushLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(batchFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.batch.Flush(); err != nil {
				s.log.Warn("attendance flush failed, keeping buffer",
					"session", s.id, "buffered", s.batch.Len(), "error", err)
			}
		}
	}
}

// finish tears the session down exactly once: cancel the workers, flush
// any buffered marks, release the source and journal the stop time. It
// runs when the capture loop exits for any reason, so a session that
// dies on its own is torn down the same way as a stopped one.
func (s *Session) finish() {
	s.once.Do(func() {
		s.cancel()
		if s.batch != nil {
			if err := s.batch.Flush(); err != nil {
				s.log.Error("final attendance flush failed",
					"session", s.id, "buffered", s.batch.Len(), "error", err)
			}
		}
		if err := s.source.Stop(); err != nil {
			s.log.Warn("failed to release frame source", "session", s.id, "error", err)
		}
		if err := s.journal.EndSession(s.id, s.clock.Now()); err != nil {
			s.log.Warn("failed to journal session stop", "session", s.id, "error", err)
		}
		s.metrics.SessionStopped()

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.log.Info("session stopped", "session", s.id)
	})
}

// Stop cancels the session and blocks until all its goroutines have
// drained. Safe to call more than once and after a self-stop.
func (s *Session) Stop() {
	s.cancel()
	s.wg.Wait()
	s.finish()
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Err returns the terminal error of a session that died on its own, or
// nil after a clean stop.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Running reports whether the capture loop is still alive.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ID returns the session's journal ID.
func (s *Session) ID() string { return s.id }

// Subject returns the subject the session marks against, possibly empty.
func (s *Session) Subject() string { return s.subject }

// Mode returns ModeRecognition or ModeDetectionOnly.
func (s *Session) Mode() string { return s.mode }
