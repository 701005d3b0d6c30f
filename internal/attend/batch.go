package attend

import (
	"fmt"
	"sync"

	"facemark/internal/model"
)

// MarkSink is where the pipeline hands marks it decided to commit.
type MarkSink interface {
	Add(rec model.AttendanceRecord) error
}

// LedgerSink appends every mark straight to the ledger.
type LedgerSink struct {
	Ledger Ledger
}

func (s LedgerSink) Add(rec model.AttendanceRecord) error {
	return s.Ledger.Mark(rec)
}

// BatchWriter buffers marks in memory and flushes them to the ledger in
// order, either when the buffer reaches its size limit, on the session's
// flush tick, or at session stop. A failed flush keeps the unflushed
// tail buffered ahead of newer marks, so nothing is lost or reordered.
type BatchWriter struct {
	ledger Ledger
	log    Logger
	max    int

	mu  sync.Mutex
	buf []model.AttendanceRecord
}

// NewBatchWriter creates a batch writer flushing at max buffered marks.
// max <= 0 disables the size trigger; the ticker and stop flushes still
// apply.
func NewBatchWriter(ledger Ledger, max int, log Logger) *BatchWriter {
	if log == nil {
		log = NewNopLogger()
	}
	return &BatchWriter{ledger: ledger, log: log, max: max}
}

// Add buffers one mark, flushing when the buffer is full.
func (w *BatchWriter) Add(rec model.AttendanceRecord) error {
	w.mu.Lock()
	w.buf = append(w.buf, rec)
	full := w.max > 0 && len(w.buf) >= w.max
	w.mu.Unlock()

	if full {
		return w.Flush()
	}
	return nil
}

// Flush drains the buffer to the ledger in order. On a mark failure the
// remaining records, including the failed one, are put back at the front
// of the buffer and the error is returned.
func (w *BatchWriter) Flush() error {
	w.mu.Lock()
	pending := w.buf
	w.buf = nil
	w.mu.Unlock()

	for i, rec := range pending {
		if err := w.ledger.Mark(rec); err != nil {
			w.mu.Lock()
			w.buf = append(append([]model.AttendanceRecord{}, pending[i:]...), w.buf...)
			w.mu.Unlock()
			return fmt.Errorf("flush attendance buffer at %d of %d: %w", i, len(pending), err)
		}
	}
	return nil
}

// Len returns the number of buffered marks.
func (w *BatchWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}
