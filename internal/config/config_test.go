package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		DataDir: "/home/user/.local/share/facemark",
		LogDir:  "/home/user/.local/share/facemark/log",
		Recognition: RecognitionConfig{
			ConfidenceThreshold: 75,
			MarkCooldownSeconds: 600,
			BatchMarks:          true,
			BatchSize:           16,
		},
		Ledger:  LedgerConfig{Type: "csv", RetryAttempts: 3, RetryDelaySeconds: 1},
		Journal: JournalConfig{Path: "/home/user/.local/share/facemark/journal.db"},
		Classifier: ClassifierConfig{
			Type: "remote", URL: "http://127.0.0.1:8470", TimeoutSeconds: 5,
		},
		Camera: CameraConfig{Type: "mjpeg", URL: "http://cam.local/stream"},
		Evidence: EvidenceConfig{
			Dir:            "/home/user/.local/share/facemark/alerts",
			Encrypt:        true,
			PublicKeyPath:  "/home/user/.local/share/facemark/keys/evidence.pub",
			PrivateKeyPath: "/home/user/.local/share/facemark/keys/evidence.key",
		},
		Alerts: AlertsConfig{
			CooldownSeconds: 10,
			DurationSeconds: 30,
			WebhookURL:      "http://hooks.local/alert",
			MQTTBroker:      "tcp://127.0.0.1:1883",
			MQTTTopic:       "facemark/alerts",
		},
		Archive: ArchiveConfig{Type: "s3", S3Bucket: "facemark-archive", S3Region: "eu-central-1"},
		Serve:   ServeConfig{Addr: "127.0.0.1:8460", TokenTTLHours: 12},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.DataDir != original.DataDir {
		t.Errorf("DataDir = %q, want %q", got.DataDir, original.DataDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Recognition.ConfidenceThreshold != 75 {
		t.Errorf("Recognition.ConfidenceThreshold = %d, want 75", got.Recognition.ConfidenceThreshold)
	}
	if !got.Recognition.BatchMarks || got.Recognition.BatchSize != 16 {
		t.Errorf("Recognition batch = %v/%d, want true/16", got.Recognition.BatchMarks, got.Recognition.BatchSize)
	}
	if got.Ledger.Type != "csv" || got.Ledger.RetryAttempts != 3 {
		t.Errorf("Ledger = %+v, want csv with 3 retry attempts", got.Ledger)
	}
	if got.Journal.Path != original.Journal.Path {
		t.Errorf("Journal.Path = %q, want %q", got.Journal.Path, original.Journal.Path)
	}
	if got.Classifier.Type != "remote" || got.Classifier.URL != "http://127.0.0.1:8470" {
		t.Errorf("Classifier = %+v, want the remote endpoint back", got.Classifier)
	}
	if got.Camera.Type != "mjpeg" || got.Camera.URL != "http://cam.local/stream" {
		t.Errorf("Camera = %+v, want the mjpeg stream back", got.Camera)
	}
	if !got.Evidence.Encrypt {
		t.Error("Evidence.Encrypt = false, want true")
	}
	if got.Evidence.PublicKeyPath != original.Evidence.PublicKeyPath {
		t.Errorf("Evidence.PublicKeyPath = %q, want %q", got.Evidence.PublicKeyPath, original.Evidence.PublicKeyPath)
	}
	if got.Alerts.MQTTBroker != "tcp://127.0.0.1:1883" || got.Alerts.WebhookURL != "http://hooks.local/alert" {
		t.Errorf("Alerts = %+v, want both notifier endpoints back", got.Alerts)
	}
	if got.Archive.Type != "s3" || got.Archive.S3Bucket != "facemark-archive" {
		t.Errorf("Archive = %+v, want the s3 backend back", got.Archive)
	}
	if got.Serve.Addr != "127.0.0.1:8460" || got.Serve.TokenTTLHours != 12 {
		t.Errorf("Serve = %+v, want the control surface settings back", got.Serve)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/facemark")

	if cfg.DataDir != "/data/facemark" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "/data/facemark")
	}
	if cfg.LogDir != "/data/facemark/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/facemark/log")
	}
	if cfg.Recognition.ConfidenceThreshold != 80 {
		t.Errorf("ConfidenceThreshold = %d, want 80", cfg.Recognition.ConfidenceThreshold)
	}
	if cfg.Recognition.MarkCooldownSeconds != 300 {
		t.Errorf("MarkCooldownSeconds = %d, want 300", cfg.Recognition.MarkCooldownSeconds)
	}
	if cfg.Journal.Path != "/data/facemark/journal.db" {
		t.Errorf("Journal.Path = %q, want %q", cfg.Journal.Path, "/data/facemark/journal.db")
	}
	if cfg.Evidence.PublicKeyPath != "/data/facemark/keys/evidence.pub" {
		t.Errorf("Evidence.PublicKeyPath = %q, want %q", cfg.Evidence.PublicKeyPath, "/data/facemark/keys/evidence.pub")
	}
	if cfg.Evidence.PrivateKeyPath != "/data/facemark/keys/evidence.key" {
		t.Errorf("Evidence.PrivateKeyPath = %q, want %q", cfg.Evidence.PrivateKeyPath, "/data/facemark/keys/evidence.key")
	}
	if cfg.Alerts.CooldownSeconds != 10 || cfg.Alerts.DurationSeconds != 30 {
		t.Errorf("Alerts = %+v, want cooldown 10 and duration 30", cfg.Alerts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v for the default config", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config { return NewConfig("/data/facemark") }

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"threshold above 100", func(c *Config) { c.Recognition.ConfidenceThreshold = 101 }},
		{"negative threshold", func(c *Config) { c.Recognition.ConfidenceThreshold = -1 }},
		{"negative cooldown", func(c *Config) { c.Recognition.MarkCooldownSeconds = -1 }},
		{"unknown ledger type", func(c *Config) { c.Ledger.Type = "oracle" }},
		{"remote classifier without url", func(c *Config) { c.Classifier.URL = "" }},
		{"unknown classifier type", func(c *Config) { c.Classifier.Type = "onnx" }},
		{"dir camera without dir", func(c *Config) { c.Camera.Dir = "" }},
		{"mjpeg camera without url", func(c *Config) { c.Camera.Type = "mjpeg"; c.Camera.URL = "" }},
		{"unknown camera type", func(c *Config) { c.Camera.Type = "v4l2" }},
		{"zero alert duration", func(c *Config) { c.Alerts.DurationSeconds = 0 }},
		{"filesystem archive without root", func(c *Config) { c.Archive.Type = "filesystem" }},
		{"s3 archive without bucket", func(c *Config) { c.Archive.Type = "s3" }},
		{"unknown archive type", func(c *Config) { c.Archive.Type = "tape" }},
		{"unknown encryptor", func(c *Config) { c.Evidence.Encryptor = "rot13" }},
		{"encrypt without key paths", func(c *Config) { c.Evidence.Encrypt = true; c.Evidence.PublicKeyPath = "" }},
		{"auth password without jwt secret", func(c *Config) { c.Serve.AuthPassword = "hunter2" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil, want a validation failure")
			}
		})
	}

	t.Run("accepted variants", func(t *testing.T) {
		for _, mutate := range []func(*Config){
			func(c *Config) { c.Ledger.Type = "memory" },
			func(c *Config) { c.Classifier = ClassifierConfig{Type: "static", StaticLabel: 42} },
			func(c *Config) { c.Archive = ArchiveConfig{Type: "memory"} },
			func(c *Config) {
				c.Archive = ArchiveConfig{Type: "filesystem", FSArchiveRoot: "/mnt/archive"}
			},
			func(c *Config) {
				c.Serve.AuthPassword = "hunter2"
				c.Serve.JWTSecret = "secret"
			},
			func(c *Config) { c.Evidence.Encryptor = "test" },
		} {
			cfg := valid()
			mutate(cfg)
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() error = %v for an accepted variant", err)
			}
		}
	})
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "facemark.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "facemark.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "facemark.toml")
		cfg := NewConfig(dir)
		cfg.Ledger = LedgerConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Ledger.Type != "memory" {
			t.Errorf("Ledger.Type = %q, want %q", got.Ledger.Type, "memory")
		}
		if got.DataDir != dir {
			t.Errorf("DataDir = %q, want %q", got.DataDir, dir)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/facemark.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
