package app

import (
	"path/filepath"
	"testing"
	"time"

	"facemark/internal/config"
	"facemark/internal/model"
)

// newTestConfig builds a config rooted in a temp dir with no external
// dependencies: static classifier, plain-file evidence, csv ledger.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Classifier = config.ClassifierConfig{
		Type:             "static",
		StaticLabel:      -1,
		StaticConfidence: 120,
	}
	cfg.Evidence.Encryptor = "test"
	return cfg
}

func TestNew_WiresService(t *testing.T) {
	cfg := newTestConfig(t)

	a, err := New(cfg, "Test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Service() == nil {
		t.Fatal("Service() = nil")
	}
	if a.Journal() == nil {
		t.Fatal("Journal() = nil")
	}
	if a.Encryptor() == nil {
		t.Fatal("Encryptor() = nil")
	}
	if a.Gatherer() == nil {
		t.Fatal("Gatherer() = nil")
	}
	if a.Config() != cfg {
		t.Error("Config() does not return the wired config")
	}

	// The wired service writes through the real csv ledger.
	if _, err := a.Service().RegisterStudent("42", "Ada"); err != nil {
		t.Fatalf("RegisterStudent() error = %v", err)
	}
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := a.Service().MarkPresent("42", "physics", at); err != nil {
		t.Fatalf("MarkPresent() error = %v", err)
	}
	recs, err := a.Service().Attendance("physics", "2026-03-02")
	if err != nil {
		t.Fatalf("Attendance() error = %v", err)
	}
	if len(recs) != 1 || recs[0].StudentID != "42" || recs[0].Status != model.StatusPresent {
		t.Errorf("Attendance() = %+v, want one Present record for 42", recs)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Ledger.Type = "oracle"

	if _, err := New(cfg, "Test"); err == nil {
		t.Fatal("New() with bad ledger type succeeded, want error")
	}
}

func TestNew_TwiceInOneProcess(t *testing.T) {
	// Each App must own its metrics registry, otherwise the second
	// construction panics on duplicate metric names.
	a1, err := New(newTestConfig(t), "Test")
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	defer a1.Close()

	a2, err := New(newTestConfig(t), "Test")
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer a2.Close()
}

func TestApp_Archiver(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Archive = config.ArchiveConfig{
		Type:          "filesystem",
		FSArchiveRoot: filepath.Join(cfg.DataDir, "offsite"),
	}

	a, err := New(cfg, "ArchivePush")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	arch, err := a.Archiver()
	if err != nil {
		t.Fatalf("Archiver() error = %v", err)
	}
	if err := arch.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}
}

func TestApp_Archiver_NotConfigured(t *testing.T) {
	a, err := New(newTestConfig(t), "ArchivePush")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if _, err := a.Archiver(); err == nil {
		t.Fatal("Archiver() with type none succeeded, want error")
	}
}

func TestApp_CloseIsClean(t *testing.T) {
	a, err := New(newTestConfig(t), "Test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
