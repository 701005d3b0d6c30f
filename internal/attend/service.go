package attend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"facemark/internal/model"
)

// classifierPingTimeout bounds the availability probe at session start.
const classifierPingTimeout = 5 * time.Second

var (
	subjectPattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _-]*$`)
	studentIDPattern = regexp.MustCompile(`^[0-9]+$`)
)

// ServiceConfig carries the decision policy and session tuning.
type ServiceConfig struct {
	// ConfidenceThreshold is the acceptance percentage (0..100). A
	// prediction matches when its distance is below 100-threshold.
	ConfidenceThreshold int

	// MarkCooldown spaces repeated marks of the same student.
	MarkCooldown time.Duration

	// AlertCooldown spaces permitted alert triggers; AlertDuration is
	// how long an alert stays active after its latest trigger.
	AlertCooldown time.Duration
	AlertDuration time.Duration

	// BatchMarks buffers marks in memory and flushes them periodically
	// instead of appending per sighting. BatchSize caps the buffer.
	BatchMarks bool
	BatchSize  int

	// SourceRetries and SourceRetryDelay bound recovery from frame
	// source failures, both at open and mid-session.
	SourceRetries    int
	SourceRetryDelay time.Duration
}

func (c *ServiceConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.SourceRetries <= 0 {
		c.SourceRetries = 3
	}
	if c.SourceRetryDelay <= 0 {
		c.SourceRetryDelay = 2 * time.Second
	}
}

// ServiceParams collects the service's injected dependencies. Ledger,
// Journal, Evidence, Classifier and Opener are required. Detector,
// Notifier, Logger and Metrics may be nil; Clock and IDs default to the
// real implementations.
type ServiceParams struct {
	Config     ServiceConfig
	Ledger     Ledger
	Journal    Journal
	Evidence   EvidenceStore
	Classifier Classifier
	Detector   Detector
	Opener     SourceOpener
	Notifier   Notifier
	Clock      Clock
	IDs        IDGenerator
	Logger     Logger
	Metrics    Recorder
}

// Service is the attendance core behind every outer surface (CLI, HTTP).
// It owns the current subject selection, at most one running session,
// the alert state machine and the mark dedup gate. All methods are safe
// for concurrent use.
type Service struct {
	cfg        ServiceConfig
	ledger     Ledger
	journal    Journal
	classifier Classifier
	detector   Detector
	opener     SourceOpener
	alerts     *AlertManager
	markGate   *CooldownGate
	clock      Clock
	ids        IDGenerator
	log        Logger
	metrics    Recorder

	mu       sync.Mutex
	subject  string
	session  *Session
	starting bool
	lastErr  error

	subMu   sync.Mutex
	nextSub int
	subs    map[int]chan FrameResult
}

// NewService wires a service from its parts.
func NewService(p ServiceParams) *Service {
	p.Config.applyDefaults()
	if p.Clock == nil {
		p.Clock = RealClock{}
	}
	if p.IDs == nil {
		p.IDs = UUIDGenerator{}
	}
	if p.Logger == nil {
		p.Logger = NewNopLogger()
	}
	if p.Metrics == nil {
		p.Metrics = NopRecorder{}
	}
	return &Service{
		cfg:        p.Config,
		ledger:     p.Ledger,
		journal:    p.Journal,
		classifier: p.Classifier,
		detector:   p.Detector,
		opener:     p.Opener,
		alerts: NewAlertManager(p.Evidence, p.Notifier, p.Clock, p.IDs,
			p.Logger, p.Config.AlertDuration, p.Config.AlertCooldown),
		markGate: NewCooldownGate(p.Config.MarkCooldown),
		clock:    p.Clock,
		ids:      p.IDs,
		log:      p.Logger,
		metrics:  p.Metrics,
		subs:     make(map[int]chan FrameResult),
	}
}

// Registry

// RegisterStudent validates and appends a student to the registry.
// IDs are numeric strings because they double as classifier labels.
func (s *Service) RegisterStudent(id, name string) (*model.Student, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if !studentIDPattern.MatchString(id) {
		return nil, fmt.Errorf("student id %q must be a positive number: %w", id, ErrInputInvalid)
	}
	if name == "" {
		return nil, fmt.Errorf("student name must not be empty: %w", ErrInputInvalid)
	}
	student := model.Student{ID: id, Name: name, RegisteredAt: s.clock.Now()}
	if err := s.ledger.RegisterStudent(student); err != nil {
		return nil, err
	}
	s.log.Info("student registered", "student", id, "name", name)
	return &student, nil
}

// Students returns the registry in registration order.
func (s *Service) Students() ([]model.Student, error) {
	return s.ledger.Students()
}

// Subject selection

// SelectSubject validates a subject name and makes it current. The
// subject cannot change while a session is running.
func (s *Service) SelectSubject(name string) error {
	name = strings.TrimSpace(name)
	if !subjectPattern.MatchString(name) {
		return fmt.Errorf("subject %q: %w", name, ErrInputInvalid)
	}
	if err := s.ledger.EnsureSubject(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && s.session.Running() {
		return fmt.Errorf("cannot change subject while a session is running: %w", ErrAlreadyExists)
	}
	s.subject = name
	s.log.Info("subject selected", "subject", name)
	return nil
}

// Subject returns the current subject, empty when none is selected.
func (s *Service) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// Sessions

// StartSession probes the classifier, attaches the frame source and
// launches the scanning goroutines. Without a selected subject the
// session still runs: recognitions are journaled and alerts fire, but
// nothing is marked. Only one session runs at a time.
func (s *Service) StartSession(ctx context.Context) error {
	s.mu.Lock()
	if s.starting || (s.session != nil && s.session.Running()) {
		s.mu.Unlock()
		return fmt.Errorf("session already running: %w", ErrAlreadyExists)
	}
	s.starting = true
	subject := s.subject
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	mode := ModeRecognition
	pingCtx, cancelPing := context.WithTimeout(ctx, classifierPingTimeout)
	if err := s.classifier.Ping(pingCtx); err != nil {
		mode = ModeDetectionOnly
		s.log.Warn("classifier unavailable, running detection-only", "error", err)
	}
	cancelPing()

	// The source is bound to the session context so cancelling the
	// session unblocks a pending read.
	sessCtx, cancel := context.WithCancel(context.Background())
	source, err := s.openSource(ctx, sessCtx)
	if err != nil {
		cancel()
		return err
	}

	id := s.ids.New()
	row := model.ScanSession{ID: id, Subject: subject, Mode: mode, StartedAt: s.clock.Now()}
	if err := s.journal.StartSession(row); err != nil {
		cancel()
		if stopErr := source.Stop(); stopErr != nil {
			s.log.Warn("failed to release frame source", "error", stopErr)
		}
		return fmt.Errorf("journal session start: %w", err)
	}

	var sink MarkSink = LedgerSink{Ledger: s.ledger}
	var batch *BatchWriter
	if s.cfg.BatchMarks {
		batch = NewBatchWriter(s.ledger, s.cfg.BatchSize, s.log)
		sink = batch
	}

	pipeline := NewPipeline(PipelineParams{
		SessionID:  id,
		Subject:    subject,
		Mode:       mode,
		Threshold:  s.cfg.ConfidenceThreshold,
		Classifier: s.classifier,
		Detector:   s.detector,
		Ledger:     s.ledger,
		Marks:      sink,
		Alerts:     s.alerts,
		Journal:    s.journal,
		MarkGate:   s.markGate,
		Clock:      s.clock,
		IDs:        s.ids,
		Logger:     s.log,
		Metrics:    s.metrics,
	})

	sess := &Session{
		id:         id,
		subject:    subject,
		mode:       mode,
		source:     source,
		pipeline:   pipeline,
		alerts:     s.alerts,
		journal:    s.journal,
		clock:      s.clock,
		log:        s.log,
		metrics:    s.metrics,
		batch:      batch,
		publish:    s.publishResult,
		retries:    s.cfg.SourceRetries,
		retryDelay: s.cfg.SourceRetryDelay,
		cancel:     cancel,
	}

	s.mu.Lock()
	s.session = sess
	s.lastErr = nil
	s.mu.Unlock()

	sess.start(sessCtx)
	s.metrics.SessionStarted()
	s.log.Info("session started", "session", id, "subject", subject, "mode", mode)
	return nil
}

func (s *Service) openSource(ctx, sessCtx context.Context) (FrameSource, error) {
	for attempt := 1; ; attempt++ {
		source, err := s.opener.Open(sessCtx)
		if err == nil {
			return source, nil
		}
		if attempt >= s.cfg.SourceRetries {
			return nil, fmt.Errorf("open frame source after %d attempts: %w", attempt, err)
		}
		s.log.Warn("frame source open failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.SourceRetryDelay):
		}
	}
}

// StopSession stops the running session, if any, and waits for it to
// drain. Stopping when nothing runs is a no-op. Returns the session's
// terminal error when it had already died on its own.
func (s *Service) StopSession() error {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return nil
	}

	sess.Stop()

	s.mu.Lock()
	if s.session == sess {
		s.session = nil
		s.lastErr = sess.Err()
	}
	s.mu.Unlock()
	return sess.Err()
}

// Running reports whether a session's capture loop is alive.
func (s *Service) Running() bool {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	return sess != nil && sess.Running()
}

// Mode returns the running session's mode, or empty when none runs.
func (s *Service) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.Mode()
}

// SessionErr returns the terminal error of the current or most recently
// stopped session, nil after a clean run.
func (s *Service) SessionErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session.Err()
	}
	return s.lastErr
}

// Marking and queries

// MarkPresent appends a manual attendance row. A zero at uses the
// current time.
func (s *Service) MarkPresent(studentID, subject string, at time.Time) error {
	subject = strings.TrimSpace(subject)
	if !subjectPattern.MatchString(subject) {
		return fmt.Errorf("subject %q: %w", subject, ErrInputInvalid)
	}
	student, err := s.ledger.FindStudent(strings.TrimSpace(studentID))
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = s.clock.Now()
	}
	rec := model.AttendanceRecord{
		StudentID: student.ID,
		Name:      student.Name,
		Subject:   subject,
		At:        at,
		Status:    model.StatusPresent,
	}
	if err := s.ledger.Mark(rec); err != nil {
		return err
	}
	s.log.Info("marked present", "student", student.ID, "subject", subject, "manual", true)
	return nil
}

// ImportMarks reads student IDs from CSV (one per row, first column;
// a header row starting with "ID" is skipped) and marks each present
// for the subject at the current time. Returns the number of rows
// marked; the first invalid row aborts the import.
func (s *Service) ImportMarks(r io.Reader, subject string) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	count := 0
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("parse import row %d: %w", line, ErrInputInvalid)
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}
		if line == 1 && strings.EqualFold(row[0], "ID") {
			continue
		}
		if err := s.MarkPresent(row[0], subject, time.Time{}); err != nil {
			return count, fmt.Errorf("import row %d: %w", line, err)
		}
		count++
	}
	s.log.Info("marks imported", "subject", subject, "count", count)
	return count, nil
}

// Attendance returns one partition's rows in append order. day uses the
// 2006-01-02 layout.
func (s *Service) Attendance(subject, day string) ([]model.AttendanceRecord, error) {
	if _, err := time.Parse(model.DayFormat, day); err != nil {
		return nil, fmt.Errorf("day %q: %w", day, ErrInputInvalid)
	}
	return s.ledger.Attendance(subject, day)
}

// Summary collapses a subject's attendance over an inclusive day range.
func (s *Service) Summary(subject, fromDay, toDay string) (*model.AttendanceSummary, error) {
	from, err := time.Parse(model.DayFormat, fromDay)
	if err != nil {
		return nil, fmt.Errorf("from day %q: %w", fromDay, ErrInputInvalid)
	}
	to, err := time.Parse(model.DayFormat, toDay)
	if err != nil {
		return nil, fmt.Errorf("to day %q: %w", toDay, ErrInputInvalid)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("day range %s..%s is reversed: %w", fromDay, toDay, ErrInputInvalid)
	}
	return s.ledger.Summarize(subject, fromDay, toDay)
}

// RecentEvents returns journaled recognition events newest-first.
func (s *Service) RecentEvents(n int) ([]model.RecognitionEvent, error) {
	return s.journal.RecentEvents(n)
}

// SessionEvents returns one session's journaled events oldest-first.
func (s *Service) SessionEvents(sessionID string) ([]model.RecognitionEvent, error) {
	return s.journal.SessionEvents(sessionID)
}

// Alerts

// IsAlertActive reports whether the unauthorized-face alert is up.
func (s *Service) IsAlertActive() bool { return s.alerts.Active() }

// CurrentAlert returns the active alert's record, nil when idle.
func (s *Service) CurrentAlert() *model.AlertRecord { return s.alerts.Current() }

// RecentAlerts returns fired alerts newest-first. n <= 0 returns all.
func (s *Service) RecentAlerts(n int) ([]model.AlertRecord, error) {
	return s.alerts.Recent(n)
}

// ResetAlert is the operator's manual all-clear.
func (s *Service) ResetAlert() {
	s.alerts.Reset()
	s.log.Info("alert reset by operator")
}

// Feed

// Subscribe registers a feed listener. The channel receives one
// FrameResult per processed frame; a listener that falls behind misses
// results instead of stalling the pipeline. The returned func
// unregisters the listener and closes the channel.
func (s *Service) Subscribe() (<-chan FrameResult, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan FrameResult, 16)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Service) publishResult(res FrameResult) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- res:
		default:
		}
	}
}

// Close stops any running session. The journal is owned by the caller
// and closed separately.
func (s *Service) Close() error {
	return s.StopSession()
}
