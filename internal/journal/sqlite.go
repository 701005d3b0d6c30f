package journal

import (
	"database/sql"
	"fmt"
	"time"

	"facemark/internal/attend"
	"facemark/internal/journal/migrations"
	"facemark/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteJournal implements the Journal interface using SQLite.
// Timestamps are stored as unix seconds; second precision matches the
// rest of the system.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) a journal at path and migrates it
// to the latest schema. path can be ":memory:" for tests.
func Open(path string) (*SQLiteJournal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal %s: %w", path, err)
	}
	return &SQLiteJournal{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured
// SQLite connection. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	// Wait for locks instead of failing when the pipeline and a query
	// land at the same moment.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

var _ attend.Journal = (*SQLiteJournal)(nil)

// StartSession inserts a session row with no stop time.
func (j *SQLiteJournal) StartSession(s model.ScanSession) error {
	_, err := j.db.Exec(
		`INSERT INTO sessions (id, subject, mode, started_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.Subject, s.Mode, s.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w: %w", attend.ErrStorageIO, err)
	}
	return nil
}

// EndSession sets the stop time of a session.
func (j *SQLiteJournal) EndSession(id string, stoppedAt time.Time) error {
	res, err := j.db.Exec(
		`UPDATE sessions SET stopped_at = ? WHERE id = ?`,
		stoppedAt.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("end session: %w: %w", attend.ErrStorageIO, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session: %w: %w", attend.ErrStorageIO, err)
	}
	if n == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// RecordEvent appends one recognition event.
func (j *SQLiteJournal) RecordEvent(e model.RecognitionEvent) error {
	_, err := j.db.Exec(
		`INSERT INTO events (id, session_id, at, subject, student_id, name, confidence, status, face_x, face_y, face_w, face_h)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.At.Unix(), e.Subject, e.StudentID, e.Name,
		e.Confidence, e.Status, e.Face.X, e.Face.Y, e.Face.W, e.Face.H,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w: %w", attend.ErrStorageIO, err)
	}
	return nil
}

const eventColumns = `id, session_id, at, subject, student_id, name, confidence, status, face_x, face_y, face_w, face_h`

func scanEvent(rows *sql.Rows) (model.RecognitionEvent, error) {
	var e model.RecognitionEvent
	var at int64
	err := rows.Scan(&e.ID, &e.SessionID, &at, &e.Subject, &e.StudentID, &e.Name,
		&e.Confidence, &e.Status, &e.Face.X, &e.Face.Y, &e.Face.W, &e.Face.H)
	if err != nil {
		return e, err
	}
	e.At = time.Unix(at, 0)
	return e, nil
}

func (j *SQLiteJournal) queryEvents(query string, args ...any) ([]model.RecognitionEvent, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w: %w", attend.ErrStorageIO, err)
	}
	defer rows.Close()

	var out []model.RecognitionEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w: %w", attend.ErrStorageIO, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w: %w", attend.ErrStorageIO, err)
	}
	return out, nil
}

// RecentEvents returns events newest-first. n <= 0 returns all.
func (j *SQLiteJournal) RecentEvents(n int) ([]model.RecognitionEvent, error) {
	if n > 0 {
		return j.queryEvents(
			`SELECT `+eventColumns+` FROM events ORDER BY at DESC, rowid DESC LIMIT ?`, n)
	}
	return j.queryEvents(
		`SELECT ` + eventColumns + ` FROM events ORDER BY at DESC, rowid DESC`)
}

// SessionEvents returns one session's events oldest-first.
func (j *SQLiteJournal) SessionEvents(sessionID string) ([]model.RecognitionEvent, error) {
	return j.queryEvents(
		`SELECT `+eventColumns+` FROM events WHERE session_id = ? ORDER BY at ASC, rowid ASC`,
		sessionID)
}

// Sessions returns journaled sessions newest-first. n <= 0 returns all.
func (j *SQLiteJournal) Sessions(n int) ([]model.ScanSession, error) {
	query := `SELECT id, subject, mode, started_at, stopped_at FROM sessions ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w: %w", attend.ErrStorageIO, err)
	}
	defer rows.Close()

	var out []model.ScanSession
	for rows.Next() {
		var s model.ScanSession
		var started int64
		var stopped sql.NullInt64
		if err := rows.Scan(&s.ID, &s.Subject, &s.Mode, &started, &stopped); err != nil {
			return nil, fmt.Errorf("scan session: %w: %w", attend.ErrStorageIO, err)
		}
		s.StartedAt = time.Unix(started, 0)
		if stopped.Valid {
			t := time.Unix(stopped.Int64, 0)
			s.StoppedAt = &t
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w: %w", attend.ErrStorageIO, err)
	}
	return out, nil
}

// Close closes the journal connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
