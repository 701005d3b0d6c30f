package archive

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"facemark/internal/attend"
	"facemark/internal/config"
)

func TestNewFSArchiver(t *testing.T) {
	root := filepath.Join(t.TempDir(), "offsite")

	a, err := NewFSArchiver(root)
	if err != nil {
		t.Fatalf("NewFSArchiver() error = %v", err)
	}

	if _, err := os.Stat(root); err != nil {
		t.Errorf("archive root not created: %v", err)
	}
	if err := a.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}
}

func TestFSArchiver_Put(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		data    string
		size    int64
		wantErr bool
	}{
		{
			name: "store object successfully",
			key:  "attendance/physics/2026-03-01.csv",
			data: "42,Ada,Present\n",
			size: 15,
		},
		{
			name:    "size mismatch",
			key:     "attendance/physics/2026-03-02.csv",
			data:    "short",
			size:    100,
			wantErr: true,
		},
		{
			name: "empty object",
			key:  "alerts/empty.json",
			data: "",
			size: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewFSArchiver(t.TempDir())
			if err != nil {
				t.Fatalf("NewFSArchiver() error = %v", err)
			}

			err = a.Put(tt.key, strings.NewReader(tt.data), tt.size)
			if (err != nil) != tt.wantErr {
				t.Errorf("Put() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr {
				data, err := os.ReadFile(filepath.Join(a.root, filepath.FromSlash(tt.key)))
				if err != nil {
					t.Fatalf("reading archived object: %v", err)
				}
				if string(data) != tt.data {
					t.Errorf("archived content = %q, want %q", data, tt.data)
				}
			}
		})
	}
}

func TestFSArchiver_Put_RejectsBadKeys(t *testing.T) {
	a, err := NewFSArchiver(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSArchiver() error = %v", err)
	}

	for _, key := range []string{"", "../escape.csv", "attendance//gap.csv", "attendance/./dot.csv"} {
		err := a.Put(key, strings.NewReader("x"), 1)
		if !errors.Is(err, attend.ErrInputInvalid) {
			t.Errorf("Put(%q) error = %v, want ErrInputInvalid", key, err)
		}
	}
}

func TestFSArchiver_Put_Overwrites(t *testing.T) {
	a, err := NewFSArchiver(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSArchiver() error = %v", err)
	}

	if err := a.Put("alerts/a.json", strings.NewReader("old"), 3); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := a.Put("alerts/a.json", strings.NewReader("newer"), 5); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(a.root, "alerts", "a.json"))
	if err != nil {
		t.Fatalf("reading archived object: %v", err)
	}
	if string(data) != "newer" {
		t.Errorf("archived content = %q, want %q", data, "newer")
	}
}

func TestFSArchiver_ValidateSetup_MissingRoot(t *testing.T) {
	a, err := NewFSArchiver(filepath.Join(t.TempDir(), "gone"))
	if err != nil {
		t.Fatalf("NewFSArchiver() error = %v", err)
	}
	if err := os.RemoveAll(a.root); err != nil {
		t.Fatal(err)
	}

	if err := a.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() succeeded with missing root")
	}
}

func TestMemoryArchiver(t *testing.T) {
	m := NewMemoryArchiver()

	if err := m.Put("attendance/physics/2026-03-01.csv", strings.NewReader("rows"), 4); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, ok := m.Object("attendance/physics/2026-03-01.csv")
	if !ok {
		t.Fatal("object not stored")
	}
	if string(data) != "rows" {
		t.Errorf("object = %q, want %q", data, "rows")
	}

	if err := m.Put("attendance/physics/2026-03-01.csv", strings.NewReader("rows2"), 5); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if data, _ := m.Object("attendance/physics/2026-03-01.csv"); string(data) != "rows2" {
		t.Errorf("object after overwrite = %q, want %q", data, "rows2")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	if err := m.Put("alerts/a.jpg", strings.NewReader("img"), 99); err == nil {
		t.Error("Put() with wrong size succeeded")
	}
}

func pushFixture(t *testing.T) (studentsDir, attendanceDir, evidenceDir string) {
	t.Helper()
	root := t.TempDir()
	studentsDir = filepath.Join(root, "students")
	attendanceDir = filepath.Join(root, "attendance")
	evidenceDir = filepath.Join(root, "alerts")

	files := map[string]string{
		filepath.Join(studentsDir, "student_details.csv"):         "ID,Name,Registration_Date\n42,Ada,2026-03-01 08:00:00\n",
		filepath.Join(attendanceDir, "physics", "2026-03-01.csv"): "42,Ada,Present,2026-03-01T09:00:00Z\n",
		filepath.Join(attendanceDir, "math", "2026-03-02.csv"):    "7,Grace,Present,2026-03-02T09:00:00Z\n",
		filepath.Join(evidenceDir, "alert_1772442000.jpg"):        "jpegbytes",
		filepath.Join(evidenceDir, "alert_1772442000.json"):       `{"id":"a1"}`,
		filepath.Join(evidenceDir, ".tmp-12345"):                  "leftover",
	}
	for p, content := range files {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return studentsDir, attendanceDir, evidenceDir
}

func TestPush(t *testing.T) {
	studentsDir, attendanceDir, evidenceDir := pushFixture(t)
	m := NewMemoryArchiver()

	stats, err := Push(m, studentsDir, attendanceDir, evidenceDir, attend.NewNopLogger())
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if stats.Files != 5 {
		t.Errorf("stats.Files = %d, want 5", stats.Files)
	}
	if stats.Bytes == 0 {
		t.Error("stats.Bytes = 0, want > 0")
	}

	wantKeys := []string{
		"students/student_details.csv",
		"attendance/physics/2026-03-01.csv",
		"attendance/math/2026-03-02.csv",
		"alerts/alert_1772442000.jpg",
		"alerts/alert_1772442000.json",
	}
	for _, key := range wantKeys {
		if _, ok := m.Object(key); !ok {
			t.Errorf("key %s not archived", key)
		}
	}
	if _, ok := m.Object("alerts/.tmp-12345"); ok {
		t.Error("temp file was archived")
	}

	data, _ := m.Object("attendance/physics/2026-03-01.csv")
	if !bytes.Contains(data, []byte("Ada")) {
		t.Errorf("archived partition missing row content: %q", data)
	}
}

func TestPush_MissingTreesAreSkipped(t *testing.T) {
	root := t.TempDir()
	m := NewMemoryArchiver()

	stats, err := Push(m, filepath.Join(root, "students"), filepath.Join(root, "attendance"), filepath.Join(root, "alerts"), attend.NewNopLogger())
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if stats.Files != 0 {
		t.Errorf("stats.Files = %d, want 0", stats.Files)
	}
}

type failingArchiver struct{}

func (failingArchiver) Put(string, io.Reader, int64) error { return errors.New("bucket on fire") }
func (failingArchiver) ValidateSetup() error               { return nil }

func TestPush_SurfacesBackendFailure(t *testing.T) {
	studentsDir, attendanceDir, evidenceDir := pushFixture(t)

	_, err := Push(failingArchiver{}, studentsDir, attendanceDir, evidenceDir, attend.NewNopLogger())
	if err == nil {
		t.Fatal("Push() succeeded with failing backend")
	}
	if !strings.Contains(err.Error(), "bucket on fire") {
		t.Errorf("error = %v, want backend failure", err)
	}
}

func TestNewArchiverFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ArchiveConfig
		wantErr bool
	}{
		{
			name: "memory archiver",
			cfg:  config.ArchiveConfig{Type: "memory"},
		},
		{
			name: "filesystem archiver",
			cfg:  config.ArchiveConfig{Type: "filesystem", FSArchiveRoot: filepath.Join(t.TempDir(), "arch")},
		},
		{
			name: "s3 archiver",
			cfg: config.ArchiveConfig{
				Type:              "s3",
				S3Bucket:          "facemark-archive",
				S3Region:          "eu-central-1",
				S3Endpoint:        "http://127.0.0.1:9000",
				S3AccessKeyID:     "minioadmin",
				S3SecretAccessKey: "minioadmin",
			},
		},
		{
			name:    "filesystem without root",
			cfg:     config.ArchiveConfig{Type: "filesystem"},
			wantErr: true,
		},
		{
			name:    "s3 without bucket",
			cfg:     config.ArchiveConfig{Type: "s3"},
			wantErr: true,
		},
		{
			name:    "not configured",
			cfg:     config.ArchiveConfig{Type: "none"},
			wantErr: true,
		},
		{
			name:    "unknown archive type",
			cfg:     config.ArchiveConfig{Type: "tape"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewArchiverFromConfig(tt.cfg)

			if (err != nil) != tt.wantErr {
				t.Errorf("NewArchiverFromConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got == nil {
				t.Error("NewArchiverFromConfig() returned nil archiver")
			}
		})
	}
}
