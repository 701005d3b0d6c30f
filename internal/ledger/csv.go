package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"facemark/internal/attend"
	"facemark/internal/model"
)

// On-disk layout, kept greppable and spreadsheet-friendly:
//
//	<root>/students/student_details.csv        ID,Name,Registration_Date
//	<root>/attendance/<subject>/<day>.csv      ID,Name,Time,Status
//
// Rows are only ever appended. Appends to one file are serialized by a
// lock keyed on the file path; reads take no lock and tolerate a torn
// trailing line from an append in flight.
const (
	studentsDir   = "students"
	registryFile  = "student_details.csv"
	attendanceDir = "attendance"

	registeredAtLayout = "2006-01-02 15:04:05"
	timeLayout         = "15:04:05"
)

var (
	registryHeader  = []string{"ID", "Name", "Registration_Date"}
	partitionHeader = []string{"ID", "Name", "Time", "Status"}
)

// CSVLedger is the flat-file attendance store.
type CSVLedger struct {
	root string
	log  attend.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCSVLedger creates a ledger rooted at dir, creating the layout's
// top-level directories.
func NewCSVLedger(dir string, log attend.Logger) (*CSVLedger, error) {
	if log == nil {
		log = attend.NewNopLogger()
	}
	for _, sub := range []string{studentsDir, attendanceDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w: %w", attend.ErrStorageIO, err)
		}
	}
	return &CSVLedger{
		root:  dir,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

var _ attend.Ledger = (*CSVLedger)(nil)

// StudentsPath and AttendancePath return the on-disk roots of the two
// ledger trees under root, for callers that mirror them offsite.
func StudentsPath(root string) string   { return filepath.Join(root, studentsDir) }
func AttendancePath(root string) string { return filepath.Join(root, attendanceDir) }

func (l *CSVLedger) registryPath() string {
	return filepath.Join(l.root, studentsDir, registryFile)
}

func (l *CSVLedger) partitionPath(subject, day string) string {
	return filepath.Join(l.root, attendanceDir, subject, day+".csv")
}

// lockFor returns the append lock for one file path.
func (l *CSVLedger) lockFor(path string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[path] = lock
	}
	return lock
}

// appendRow serializes one row onto path, writing the header first when
// the file is new. Callers hold the path lock.
func appendRow(path string, header, row []string) error {
	fi, err := os.Stat(path)
	fresh := err != nil || fi.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w: %w", filepath.Base(path), attend.ErrStorageIO, err)
	}
	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w: %w", attend.ErrStorageIO, err)
		}
	}
	if err := w.Write(row); err != nil {
		f.Close()
		return fmt.Errorf("write row: %w: %w", attend.ErrStorageIO, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w: %w", filepath.Base(path), attend.ErrStorageIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w: %w", filepath.Base(path), attend.ErrStorageIO, err)
	}
	return nil
}

// readRows reads all complete rows of a CSV file without locking.
// A missing file reads as empty; a malformed tail ends the read at the
// last complete row.
func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w: %w", filepath.Base(path), attend.ErrStorageIO, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Torn or malformed tail: keep what parsed cleanly.
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RegisterStudent appends to the registry after a duplicate check.
func (l *CSVLedger) RegisterStudent(s model.Student) error {
	if s.ID == "" || s.Name == "" {
		return fmt.Errorf("student id and name must be set: %w", attend.ErrInputInvalid)
	}
	path := l.registryPath()
	lock := l.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	existing, err := l.loadStudents()
	if err != nil {
		return err
	}
	for _, st := range existing {
		if st.ID == s.ID {
			return fmt.Errorf("student %s: %w", s.ID, attend.ErrAlreadyExists)
		}
	}
	row := []string{s.ID, s.Name, s.RegisteredAt.Format(registeredAtLayout)}
	return appendRow(path, registryHeader, row)
}

func (l *CSVLedger) loadStudents() ([]model.Student, error) {
	rows, err := readRows(l.registryPath())
	if err != nil {
		return nil, err
	}
	students := make([]model.Student, 0, len(rows))
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == registryHeader[0] {
			continue
		}
		if len(row) < 3 {
			continue
		}
		registered, err := time.ParseInLocation(registeredAtLayout, row[2], time.Local)
		if err != nil {
			l.log.Debug("skipping malformed registry row", "row", i, "error", err)
			continue
		}
		students = append(students, model.Student{ID: row[0], Name: row[1], RegisteredAt: registered})
	}
	return students, nil
}

// Students returns the registry in registration order.
func (l *CSVLedger) Students() ([]model.Student, error) {
	return l.loadStudents()
}

// FindStudent returns the student with the given ID.
func (l *CSVLedger) FindStudent(id string) (*model.Student, error) {
	students, err := l.loadStudents()
	if err != nil {
		return nil, err
	}
	for _, st := range students {
		if st.ID == id {
			found := st
			return &found, nil
		}
	}
	return nil, fmt.Errorf("student %s: %w", id, attend.ErrUnknownStudent)
}

// EnsureSubject creates the subject's partition directory.
func (l *CSVLedger) EnsureSubject(subject string) error {
	if err := checkSubject(subject); err != nil {
		return err
	}
	dir := filepath.Join(l.root, attendanceDir, subject)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create subject directory: %w: %w", attend.ErrStorageIO, err)
	}
	return nil
}

// checkSubject rejects names that would escape the attendance tree.
func checkSubject(subject string) error {
	if subject == "" || subject != filepath.Base(subject) || strings.HasPrefix(subject, ".") {
		return fmt.Errorf("subject %q: %w", subject, attend.ErrInputInvalid)
	}
	return nil
}

// Mark appends one row to the record's (subject, day) partition.
func (l *CSVLedger) Mark(rec model.AttendanceRecord) error {
	if err := checkSubject(rec.Subject); err != nil {
		return err
	}
	if rec.Status != model.StatusPresent && rec.Status != model.StatusAbsent {
		return fmt.Errorf("status %q: %w", rec.Status, attend.ErrInputInvalid)
	}
	if _, err := l.FindStudent(rec.StudentID); err != nil {
		return err
	}
	if err := l.EnsureSubject(rec.Subject); err != nil {
		return err
	}

	path := l.partitionPath(rec.Subject, model.Day(rec.At))
	lock := l.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	row := []string{rec.StudentID, rec.Name, rec.At.Format(timeLayout), string(rec.Status)}
	return appendRow(path, partitionHeader, row)
}

// Attendance returns one partition's rows in append order. A partition
// that does not exist yet reads as empty.
func (l *CSVLedger) Attendance(subject, day string) ([]model.AttendanceRecord, error) {
	if err := checkSubject(subject); err != nil {
		return nil, err
	}
	dayStart, err := time.ParseInLocation(model.DayFormat, day, time.Local)
	if err != nil {
		return nil, fmt.Errorf("day %q: %w", day, attend.ErrInputInvalid)
	}

	rows, err := readRows(l.partitionPath(subject, day))
	if err != nil {
		return nil, err
	}
	records := make([]model.AttendanceRecord, 0, len(rows))
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == partitionHeader[0] {
			continue
		}
		if len(row) < 4 {
			continue
		}
		clock, err := time.ParseInLocation(timeLayout, row[2], time.Local)
		if err != nil {
			l.log.Debug("skipping malformed attendance row", "partition", day, "row", i, "error", err)
			continue
		}
		at := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(),
			clock.Hour(), clock.Minute(), clock.Second(), 0, time.Local)
		records = append(records, model.AttendanceRecord{
			StudentID: row[0],
			Name:      row[1],
			Subject:   subject,
			At:        at,
			Status:    model.AttendanceStatus(row[3]),
		})
	}
	return records, nil
}

// Summarize collapses partitions over an inclusive day range.
func (l *CSVLedger) Summarize(subject, fromDay, toDay string) (*model.AttendanceSummary, error) {
	days, err := dayRange(fromDay, toDay)
	if err != nil {
		return nil, err
	}
	students, err := l.loadStudents()
	if err != nil {
		return nil, err
	}

	presentByDay := make(map[string]map[string]bool, len(days))
	for _, day := range days {
		records, err := l.Attendance(subject, day)
		if err != nil {
			return nil, err
		}
		present := make(map[string]bool)
		for _, rec := range records {
			if rec.Status == model.StatusPresent {
				present[rec.StudentID] = true
			}
		}
		presentByDay[day] = present
	}

	return buildSummary(subject, fromDay, toDay, days, students, presentByDay), nil
}

// dayRange enumerates the inclusive day keys between from and to.
func dayRange(fromDay, toDay string) ([]string, error) {
	from, err := time.Parse(model.DayFormat, fromDay)
	if err != nil {
		return nil, fmt.Errorf("from day %q: %w", fromDay, attend.ErrInputInvalid)
	}
	to, err := time.Parse(model.DayFormat, toDay)
	if err != nil {
		return nil, fmt.Errorf("to day %q: %w", toDay, attend.ErrInputInvalid)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("day range %s..%s is reversed: %w", fromDay, toDay, attend.ErrInputInvalid)
	}
	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(model.DayFormat))
	}
	return days, nil
}

// buildSummary applies the collapsing rule: Present iff at least one
// Present row that day, else Absent; no cell before the student's
// registration day. Rows are ordered by numeric student ID.
func buildSummary(subject, fromDay, toDay string, days []string, students []model.Student, presentByDay map[string]map[string]bool) *model.AttendanceSummary {
	sorted := make([]model.Student, len(students))
	copy(sorted, students)
	sort.Slice(sorted, func(i, j int) bool {
		a, errA := strconv.Atoi(sorted[i].ID)
		b, errB := strconv.Atoi(sorted[j].ID)
		if errA != nil || errB != nil {
			return sorted[i].ID < sorted[j].ID
		}
		return a < b
	})

	rows := make([]model.SummaryRow, 0, len(sorted))
	for _, st := range sorted {
		registeredDay := model.Day(st.RegisteredAt)
		marks := make(map[string]model.AttendanceStatus, len(days))
		for _, day := range days {
			if day < registeredDay {
				continue
			}
			if presentByDay[day][st.ID] {
				marks[day] = model.StatusPresent
			} else {
				marks[day] = model.StatusAbsent
			}
		}
		rows = append(rows, model.SummaryRow{StudentID: st.ID, Name: st.Name, Marks: marks})
	}
	return &model.AttendanceSummary{
		Subject: subject,
		From:    fromDay,
		To:      toDay,
		Days:    days,
		Rows:    rows,
	}
}
