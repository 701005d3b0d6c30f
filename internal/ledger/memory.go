package ledger

import (
	"fmt"
	"sync"

	"facemark/internal/attend"
	"facemark/internal/model"
)

// MemoryLedger is an in-memory implementation of the attendance store.
// It keeps the CSV ledger's semantics without touching disk, making it
// useful for tests and throwaway demo runs. Safe for concurrent use.
type MemoryLedger struct {
	mu         sync.RWMutex
	students   []model.Student
	partitions map[string][]model.AttendanceRecord // subject + "/" + day
	subjects   map[string]bool
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		partitions: make(map[string][]model.AttendanceRecord),
		subjects:   make(map[string]bool),
	}
}

var _ attend.Ledger = (*MemoryLedger)(nil)

func partitionKey(subject, day string) string { return subject + "/" + day }

func (l *MemoryLedger) RegisterStudent(s model.Student) error {
	if s.ID == "" || s.Name == "" {
		return fmt.Errorf("student id and name must be set: %w", attend.ErrInputInvalid)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, st := range l.students {
		if st.ID == s.ID {
			return fmt.Errorf("student %s: %w", s.ID, attend.ErrAlreadyExists)
		}
	}
	l.students = append(l.students, s)
	return nil
}

func (l *MemoryLedger) Students() ([]model.Student, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Student, len(l.students))
	copy(out, l.students)
	return out, nil
}

func (l *MemoryLedger) FindStudent(id string) (*model.Student, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, st := range l.students {
		if st.ID == id {
			found := st
			return &found, nil
		}
	}
	return nil, fmt.Errorf("student %s: %w", id, attend.ErrUnknownStudent)
}

func (l *MemoryLedger) EnsureSubject(subject string) error {
	if err := checkSubject(subject); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subjects[subject] = true
	return nil
}

func (l *MemoryLedger) Mark(rec model.AttendanceRecord) error {
	if err := checkSubject(rec.Subject); err != nil {
		return err
	}
	if rec.Status != model.StatusPresent && rec.Status != model.StatusAbsent {
		return fmt.Errorf("status %q: %w", rec.Status, attend.ErrInputInvalid)
	}
	if _, err := l.FindStudent(rec.StudentID); err != nil {
		return err
	}
	key := partitionKey(rec.Subject, model.Day(rec.At))
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subjects[rec.Subject] = true
	l.partitions[key] = append(l.partitions[key], rec)
	return nil
}

func (l *MemoryLedger) Attendance(subject, day string) ([]model.AttendanceRecord, error) {
	if err := checkSubject(subject); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	rows := l.partitions[partitionKey(subject, day)]
	out := make([]model.AttendanceRecord, len(rows))
	copy(out, rows)
	return out, nil
}

func (l *MemoryLedger) Summarize(subject, fromDay, toDay string) (*model.AttendanceSummary, error) {
	days, err := dayRange(fromDay, toDay)
	if err != nil {
		return nil, err
	}
	students, err := l.Students()
	if err != nil {
		return nil, err
	}

	presentByDay := make(map[string]map[string]bool, len(days))
	l.mu.RLock()
	for _, day := range days {
		present := make(map[string]bool)
		for _, rec := range l.partitions[partitionKey(subject, day)] {
			if rec.Status == model.StatusPresent {
				present[rec.StudentID] = true
			}
		}
		presentByDay[day] = present
	}
	l.mu.RUnlock()

	return buildSummary(subject, fromDay, toDay, days, students, presentByDay), nil
}
