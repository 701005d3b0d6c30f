package testutil

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"sync"

	"facemark/internal/model"
)

// MemoryEvidence stores alert snapshots in memory, newest last.
// Safe for concurrent use.
type MemoryEvidence struct {
	SaveErr error

	mu    sync.Mutex
	saved []model.AlertRecord
}

func NewMemoryEvidence() *MemoryEvidence {
	return &MemoryEvidence{}
}

func (m *MemoryEvidence) Save(rec model.AlertRecord, _ image.Image) (string, error) {
	if m.SaveErr != nil {
		return "", m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := fmt.Sprintf("evidence-%d", len(m.saved)+1)
	rec.EvidenceRef = ref
	m.saved = append(m.saved, rec)
	return ref, nil
}

func (m *MemoryEvidence) Recent(n int) ([]model.AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AlertRecord, 0, len(m.saved))
	for i := len(m.saved) - 1; i >= 0; i-- {
		out = append(out, m.saved[i])
		if n > 0 && len(out) == n {
			break
		}
	}
	return out, nil
}

func (m *MemoryEvidence) Open(ref string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.saved {
		if rec.EvidenceRef == ref {
			return io.NopCloser(bytes.NewReader([]byte("snapshot " + ref))), nil
		}
	}
	return nil, fmt.Errorf("evidence not found: %s", ref)
}

// Saved returns the records in save order.
func (m *MemoryEvidence) Saved() []model.AlertRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AlertRecord, len(m.saved))
	copy(out, m.saved)
	return out
}
