package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"facemark/internal/attend"
	"facemark/internal/model"
)

const borderWidth = 3

var borderColor = color.RGBA{R: 255, A: 255}

// FileStore is a filesystem-based implementation of the EvidenceStore
// interface. Each fired alert produces two files in the evidence directory:
//
//	alert_<unix>.jpg       (annotated snapshot; .jpg.age when encrypting)
//	alert_<unix>.json      (the alert record, always plaintext)
//
// The record sidecar stays plaintext so alerts can be listed without
// unlocking the private key. When two alerts fire within the same second
// the later one gets a _2, _3, ... suffix.
type FileStore struct {
	dir     string
	enc     attend.Encryptor
	encrypt bool

	// serializes name allocation so same-second saves cannot race
	mu sync.Mutex
}

var _ attend.EvidenceStore = (*FileStore)(nil)

// NewFileStore creates the evidence directory if needed. enc may be nil
// when encrypt is false.
func NewFileStore(dir string, enc attend.Encryptor, encrypt bool) (*FileStore, error) {
	if encrypt && enc == nil {
		return nil, fmt.Errorf("evidence encryption enabled but no encryptor provided")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating evidence directory: %w: %w", attend.ErrStorageIO, err)
	}
	return &FileStore{dir: dir, enc: enc, encrypt: encrypt}, nil
}

// Save annotates the frame with the alert's face box, encodes it as JPEG
// and writes it next to a JSON sidecar holding the record. Returns the
// snapshot filename as the evidence reference.
func (s *FileStore) Save(rec model.AlertRecord, frame image.Image) (string, error) {
	annotated := annotate(frame, rec.Face)

	var img bytes.Buffer
	if err := jpeg.Encode(&img, annotated, nil); err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	payload := img.Bytes()
	ext := ".jpg"
	if s.encrypt {
		var sealed bytes.Buffer
		if err := s.enc.Encrypt(bytes.NewReader(payload), &sealed); err != nil {
			return "", fmt.Errorf("encrypting snapshot: %w", err)
		}
		payload = sealed.Bytes()
		ext = ".jpg.age"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.allocateName(fmt.Sprintf("alert_%d", rec.TriggeredAt.Unix()), ext)
	ref := base + ext

	if err := s.writeFile(filepath.Join(s.dir, ref), bytes.NewReader(payload)); err != nil {
		return "", fmt.Errorf("writing snapshot: %w: %w", attend.ErrStorageIO, err)
	}

	rec.EvidenceRef = ref
	meta, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding alert record: %w", err)
	}
	if err := s.writeFile(filepath.Join(s.dir, base+".json"), bytes.NewReader(meta)); err != nil {
		return "", fmt.Errorf("writing alert record: %w: %w", attend.ErrStorageIO, err)
	}

	return ref, nil
}

// Recent returns stored alert records newest-first. n <= 0 returns all.
// Corrupt sidecars are skipped rather than failing the whole listing.
func (s *FileStore) Recent(n int) ([]model.AlertRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing evidence directory: %w: %w", attend.ErrStorageIO, err)
	}

	var out []model.AlertRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec model.AlertRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].TriggeredAt.Equal(out[j].TriggeredAt) {
			return out[i].TriggeredAt.After(out[j].TriggeredAt)
		}
		return out[i].EvidenceRef > out[j].EvidenceRef
	})

	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Open returns the stored snapshot bytes for a reference, as written.
func (s *FileStore) Open(ref string) (io.ReadCloser, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return nil, fmt.Errorf("invalid evidence reference %q: %w", ref, attend.ErrInputInvalid)
	}
	f, err := os.Open(filepath.Join(s.dir, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("evidence not found: %s", ref)
		}
		return nil, fmt.Errorf("opening evidence: %w: %w", attend.ErrStorageIO, err)
	}
	return f, nil
}

// allocateName returns base, or base_2, base_3, ... when a snapshot with
// that name already exists. Caller holds s.mu.
func (s *FileStore) allocateName(base, ext string) string {
	name := base
	for k := 2; ; k++ {
		if _, err := os.Stat(filepath.Join(s.dir, name+ext)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, k)
	}
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (s *FileStore) writeFile(destPath string, r io.Reader) error {
	tmpFile, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// annotate copies the frame and draws a red box around the face.
func annotate(frame image.Image, face model.Rect) *image.RGBA {
	bounds := frame.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, frame, bounds.Min, draw.Src)

	if face.W <= 0 || face.H <= 0 {
		return dst
	}

	box := face.Rectangle()
	red := &image.Uniform{borderColor}
	strips := []image.Rectangle{
		image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+borderWidth),
		image.Rect(box.Min.X, box.Max.Y-borderWidth, box.Max.X, box.Max.Y),
		image.Rect(box.Min.X, box.Min.Y, box.Min.X+borderWidth, box.Max.Y),
		image.Rect(box.Max.X-borderWidth, box.Min.Y, box.Max.X, box.Max.Y),
	}
	for _, strip := range strips {
		draw.Draw(dst, strip.Intersect(bounds), red, image.Point{}, draw.Src)
	}
	return dst
}
