package attend

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"strconv"

	"facemark/internal/model"
)

// Session modes. A session that cannot reach its classifier at start
// runs detection-only: faces are located and reported but never
// classified, marked or alerted on.
const (
	ModeRecognition   = "recognition"
	ModeDetectionOnly = "detection-only"
)

// OutcomeKind is the per-face result of one pipeline pass.
type OutcomeKind string

const (
	// OutcomeRecognized: the classifier matched a trained identity.
	OutcomeRecognized OutcomeKind = "recognized"
	// OutcomeUnknown: no identity matched; the alert path ran.
	OutcomeUnknown OutcomeKind = "unknown"
	// OutcomeDetected: detection-only mode, face located but not classified.
	OutcomeDetected OutcomeKind = "detected"
	// OutcomeSkipped: region out of bounds or the classifier call failed.
	OutcomeSkipped OutcomeKind = "skipped"
)

// Outcome describes what the pipeline decided for one face.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	Face       model.Rect  `json:"face"`
	StudentID  string      `json:"student_id,omitempty"`
	Name       string      `json:"name,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
	Marked     bool        `json:"marked,omitempty"`
	AlertFired bool        `json:"alert_fired,omitempty"`
	AlertID    string      `json:"alert_id,omitempty"`
}

// PipelineParams collects everything one session's pipeline needs.
// Classifier, Ledger, Marks, Alerts, Journal, MarkGate, Clock and IDs are
// required; Detector, Logger and Metrics may be nil.
type PipelineParams struct {
	SessionID string
	Subject   string // Empty: recognition runs but nothing is marked
	Mode      string // ModeRecognition or ModeDetectionOnly
	Threshold int    // Confidence threshold percentage, 0..100

	Classifier Classifier
	Detector   Detector
	Ledger     Ledger
	Marks      MarkSink
	Alerts     *AlertManager
	Journal    Journal
	MarkGate   *CooldownGate
	Clock      Clock
	IDs        IDGenerator
	Logger     Logger
	Metrics    Recorder
}

// Pipeline turns captured frames into journal entries, attendance marks
// and alerts. Decision policy per face:
//
//   - a recognized identity ALWAYS journals a Recognized event;
//   - a mark is appended only when the student is registered, a subject
//     is selected, and the per-student cooldown permits;
//   - an unrecognized face is handed to the alert manager, which applies
//     its own cooldown.
//
// The pipeline never fails a session over a single face: storage and
// classifier errors are logged, counted and skipped.
type Pipeline struct {
	sessionID string
	subject   string
	mode      string
	threshold int

	classifier Classifier
	detector   Detector
	ledger     Ledger
	marks      MarkSink
	alerts     *AlertManager
	journal    Journal
	markGate   *CooldownGate
	clock      Clock
	ids        IDGenerator
	log        Logger
	metrics    Recorder
}

// NewPipeline creates a pipeline for one session.
func NewPipeline(p PipelineParams) *Pipeline {
	if p.Logger == nil {
		p.Logger = NewNopLogger()
	}
	if p.Metrics == nil {
		p.Metrics = NopRecorder{}
	}
	return &Pipeline{
		sessionID:  p.SessionID,
		subject:    p.Subject,
		mode:       p.Mode,
		threshold:  p.Threshold,
		classifier: p.Classifier,
		detector:   p.Detector,
		ledger:     p.Ledger,
		marks:      p.Marks,
		alerts:     p.Alerts,
		journal:    p.Journal,
		markGate:   p.MarkGate,
		clock:      p.Clock,
		ids:        p.IDs,
		log:        p.Logger,
		metrics:    p.Metrics,
	}
}

// Process runs the decision policy over one frame and returns the
// per-face outcomes in face order.
func (p *Pipeline) Process(ctx context.Context, frame *Frame) []Outcome {
	p.metrics.FrameProcessed()

	faces := frame.Faces
	if faces == nil && p.detector != nil {
		located, err := p.detector.Detect(ctx, frame.Image)
		if err != nil {
			p.metrics.ClassifierError()
			p.log.Warn("face detection failed", "seq", frame.Seq, "error", err)
			return nil
		}
		faces = located
	}
	if len(faces) == 0 {
		return nil
	}
	p.metrics.FacesDetected(len(faces))

	bounds := frame.Image.Bounds()
	outcomes := make([]Outcome, 0, len(faces))
	for _, face := range faces {
		outcomes = append(outcomes, p.processFace(ctx, frame, face, bounds))
	}
	return outcomes
}

func (p *Pipeline) processFace(ctx context.Context, frame *Frame, face model.Rect, bounds image.Rectangle) Outcome {
	if face.W <= 0 || face.H <= 0 || !face.Rectangle().In(bounds) {
		p.log.Warn("skipping face region outside frame bounds",
			"seq", frame.Seq, "x", face.X, "y", face.Y, "w", face.W, "h", face.H)
		return Outcome{Kind: OutcomeSkipped, Face: face}
	}

	if p.mode == ModeDetectionOnly {
		return Outcome{Kind: OutcomeDetected, Face: face}
	}

	pred, err := p.classifier.Recognize(ctx, cropFace(frame.Image, face.Rectangle()))
	if err != nil {
		p.metrics.ClassifierError()
		p.log.Warn("classification failed", "seq", frame.Seq, "error", err)
		return Outcome{Kind: OutcomeSkipped, Face: face}
	}

	if Matches(pred, p.threshold) {
		return p.recognized(frame, face, pred)
	}
	return p.unrecognized(ctx, frame, face, pred)
}

// recognized journals the sighting unconditionally and marks attendance
// only when the mark gate, registry and subject all allow it.
func (p *Pipeline) recognized(frame *Frame, face model.Rect, pred Prediction) Outcome {
	now := p.clock.Now()
	studentID := strconv.Itoa(pred.Label)

	var name string
	student, err := p.ledger.FindStudent(studentID)
	switch {
	case err == nil:
		name = student.Name
	case errors.Is(err, ErrUnknownStudent):
		p.log.Warn("recognized label has no registered student", "label", pred.Label)
	default:
		p.log.Error("student lookup failed", "student", studentID, "error", err)
	}

	p.journalEvent(model.RecognitionEvent{
		ID:         p.ids.New(),
		SessionID:  p.sessionID,
		At:         now,
		Subject:    p.subject,
		StudentID:  studentID,
		Name:       name,
		Confidence: pred.Confidence,
		Status:     model.EventRecognized,
		Face:       face,
	})

	out := Outcome{
		Kind:       OutcomeRecognized,
		Face:       face,
		StudentID:  studentID,
		Name:       name,
		Confidence: pred.Confidence,
	}
	if student == nil {
		return out
	}
	if p.subject == "" {
		p.log.Debug("no subject selected, mark skipped", "student", studentID)
		return out
	}
	if !p.markGate.TryFire(studentID, now) {
		p.metrics.MarkDeduplicated()
		return out
	}

	rec := model.AttendanceRecord{
		StudentID: studentID,
		Name:      name,
		Subject:   p.subject,
		At:        now,
		Status:    model.StatusPresent,
	}
	if err := p.marks.Add(rec); err != nil {
		// Re-arm the gate so the next sighting retries the mark.
		p.markGate.Reset(studentID)
		p.metrics.MarkFailed()
		p.log.Error("failed to mark attendance", "student", studentID, "error", err)
		return out
	}
	out.Marked = true
	p.metrics.MarkCommitted()
	p.log.Info("marked present", "student", studentID, "name", name, "subject", p.subject)
	return out
}

func (p *Pipeline) unrecognized(ctx context.Context, frame *Frame, face model.Rect, pred Prediction) Outcome {
	out := Outcome{Kind: OutcomeUnknown, Face: face, Confidence: pred.Confidence}

	rec, fired := p.alerts.Trigger(ctx, frame.Image, face, p.subject)
	if !fired {
		p.metrics.AlertSuppressed()
		return out
	}
	p.metrics.AlertFired()
	out.AlertFired = true
	out.AlertID = rec.ID

	p.journalEvent(model.RecognitionEvent{
		ID:         p.ids.New(),
		SessionID:  p.sessionID,
		At:         rec.TriggeredAt,
		Subject:    p.subject,
		Confidence: pred.Confidence,
		Status:     model.EventAlert,
		Face:       face,
	})
	p.log.Warn("unrecognized face, alert raised",
		"alert", rec.ID, "confidence", pred.Confidence, "evidence", rec.EvidenceRef)
	return out
}

func (p *Pipeline) journalEvent(ev model.RecognitionEvent) {
	if err := p.journal.RecordEvent(ev); err != nil {
		p.log.Warn("failed to journal event", "event", ev.ID, "error", err)
	}
}

// cropFace extracts a face region. Image types that support SubImage
// share pixels; anything else is copied.
func cropFace(img image.Image, r image.Rectangle) image.Image {
	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}
