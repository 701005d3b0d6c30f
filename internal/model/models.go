package model

import (
	"image"
	"time"
)

// DayFormat is the canonical date layout for attendance partitions
// and summary columns.
const DayFormat = "2006-01-02"

// Day returns t formatted as a partition day key.
func Day(t time.Time) string {
	return t.Format(DayFormat)
}

// AttendanceStatus is the per-day standing of a student in a ledger row
// or summary cell.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "Present"
	StatusAbsent  AttendanceStatus = "Absent"
)

// Recognition event statuses recorded in the journal.
const (
	EventRecognized = "Recognized"
	EventAlert      = "Alert"
)

// Student is one row of the registry.
type Student struct {
	ID           string // Numeric string, the classifier label in decimal
	Name         string
	RegisteredAt time.Time
}

// AttendanceRecord is one appended ledger row. Rows are never updated or
// deleted; the partition is derived from Subject and the date of At.
type AttendanceRecord struct {
	StudentID string
	Name      string
	Subject   string
	At        time.Time // Second precision survives a round trip
	Status    AttendanceStatus
}

// Rect is a face bounding box in pixel coordinates, origin top-left.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rectangle converts r to a half-open stdlib rectangle.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// RectOf converts a stdlib rectangle to a Rect.
func RectOf(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// RecognitionEvent is one journaled pipeline decision. StudentID is empty
// for unrecognized faces.
type RecognitionEvent struct {
	ID         string
	SessionID  string
	At         time.Time
	Subject    string
	StudentID  string
	Name       string
	Confidence float64 // Classifier distance, lower is closer
	Status     string  // EventRecognized or EventAlert
	Face       Rect
}

// AlertRecord describes one fired alert and its evidence snapshot.
type AlertRecord struct {
	ID          string    `json:"id"`
	TriggeredAt time.Time `json:"triggered_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	EvidenceRef string    `json:"evidence_ref"`
	Face        Rect      `json:"face"`
}

// ScanSession is one journaled scanning run.
type ScanSession struct {
	ID        string
	Subject   string // Empty when scanning without a subject
	Mode      string // "recognition" or "detection-only"
	StartedAt time.Time
	StoppedAt *time.Time // Nil while the session is running
}

// SummaryRow is one student line of an attendance summary.
type SummaryRow struct {
	StudentID string
	Name      string
	// Marks maps a day key to Present or Absent. Days before the
	// student's registration date have no entry.
	Marks map[string]AttendanceStatus
}

// AttendanceSummary is the collapsed per-day view of a subject's
// attendance over an inclusive day range.
type AttendanceSummary struct {
	Subject string
	From    string
	To      string
	Days    []string // Ordered day keys covering From..To
	Rows    []SummaryRow
}
