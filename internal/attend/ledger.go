package attend

import "facemark/internal/model"

// Ledger is the append-only attendance store: a student registry plus one
// partition per (subject, day). Implementations must serialize appends to
// the same partition; reads must not block writers.
type Ledger interface {
	// Registry operations

	// RegisterStudent appends a student to the registry.
	// Returns ErrAlreadyExists if the ID is taken.
	RegisterStudent(s model.Student) error

	// Students returns all registered students in registration order.
	Students() ([]model.Student, error)

	// FindStudent returns the student with the given ID.
	// Returns ErrUnknownStudent if no such student is registered.
	FindStudent(id string) (*model.Student, error)

	// Partition operations

	// EnsureSubject prepares storage for a subject's partitions.
	// Idempotent; called when a subject is first selected.
	EnsureSubject(subject string) error

	// Mark appends one attendance row to the (subject, day) partition
	// derived from the record. The record's student must be registered.
	// The ledger never deduplicates; repeated marks append repeated rows.
	Mark(rec model.AttendanceRecord) error

	// Attendance returns the rows of one partition in append order.
	// A partition that does not exist yet reads as empty.
	Attendance(subject, day string) ([]model.AttendanceRecord, error)

	// Summarize collapses a subject's partitions over an inclusive day
	// range: a student is Present on a day iff at least one Present row
	// exists for them, otherwise Absent. Days before a student's
	// registration date carry no entry for that student.
	Summarize(subject, fromDay, toDay string) (*model.AttendanceSummary, error)
}
