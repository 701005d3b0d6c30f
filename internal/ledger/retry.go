package ledger

import (
	"errors"
	"time"

	"facemark/internal/attend"
	"facemark/internal/model"
)

// RetryLedger wraps a ledger with bounded retries on storage failures.
// Only errors matching attend.ErrStorageIO are retried; everything else
// (validation, unknown student, duplicates) returns immediately. The
// delay doubles after each failed attempt.
type RetryLedger struct {
	inner    attend.Ledger
	attempts int
	delay    time.Duration
	log      attend.Logger
}

// NewRetryLedger wraps inner. attempts is the total number of tries;
// values below 2 leave the ledger effectively unwrapped.
func NewRetryLedger(inner attend.Ledger, attempts int, delay time.Duration, log attend.Logger) *RetryLedger {
	if log == nil {
		log = attend.NewNopLogger()
	}
	return &RetryLedger{inner: inner, attempts: attempts, delay: delay, log: log}
}

var _ attend.Ledger = (*RetryLedger)(nil)

func (l *RetryLedger) retry(op string, fn func() error) error {
	delay := l.delay
	var err error
	for attempt := 1; attempt <= l.attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, attend.ErrStorageIO) {
			return err
		}
		if attempt < l.attempts {
			l.log.Warn("ledger operation failed, retrying",
				"op", op, "attempt", attempt, "error", err)
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}

func (l *RetryLedger) RegisterStudent(s model.Student) error {
	return l.retry("register", func() error { return l.inner.RegisterStudent(s) })
}

func (l *RetryLedger) Students() ([]model.Student, error) {
	var out []model.Student
	err := l.retry("students", func() error {
		var err error
		out, err = l.inner.Students()
		return err
	})
	return out, err
}

func (l *RetryLedger) FindStudent(id string) (*model.Student, error) {
	var out *model.Student
	err := l.retry("find student", func() error {
		var err error
		out, err = l.inner.FindStudent(id)
		return err
	})
	return out, err
}

func (l *RetryLedger) EnsureSubject(subject string) error {
	return l.retry("ensure subject", func() error { return l.inner.EnsureSubject(subject) })
}

func (l *RetryLedger) Mark(rec model.AttendanceRecord) error {
	return l.retry("mark", func() error { return l.inner.Mark(rec) })
}

func (l *RetryLedger) Attendance(subject, day string) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	err := l.retry("attendance", func() error {
		var err error
		out, err = l.inner.Attendance(subject, day)
		return err
	})
	return out, err
}

func (l *RetryLedger) Summarize(subject, fromDay, toDay string) (*model.AttendanceSummary, error) {
	var out *model.AttendanceSummary
	err := l.retry("summarize", func() error {
		var err error
		out, err = l.inner.Summarize(subject, fromDay, toDay)
		return err
	})
	return out, err
}
