package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for facemark.
type Config struct {
	DataDir     string            `toml:"data_dir"`
	LogDir      string            `toml:"log_dir"`
	Recognition RecognitionConfig `toml:"recognition"`
	Ledger      LedgerConfig      `toml:"ledger"`
	Journal     JournalConfig     `toml:"journal"`
	Classifier  ClassifierConfig  `toml:"classifier"`
	Camera      CameraConfig      `toml:"camera"`
	Evidence    EvidenceConfig    `toml:"evidence"`
	Alerts      AlertsConfig      `toml:"alerts"`
	Archive     ArchiveConfig     `toml:"archive"`
	Serve       ServeConfig       `toml:"serve"`
}

// RecognitionConfig tunes the match policy and mark dedup.
type RecognitionConfig struct {
	// ConfidenceThreshold is a percentage (0..100). A prediction is
	// accepted when its distance is strictly below 100-threshold.
	ConfidenceThreshold int `toml:"confidence_threshold"`

	// MarkCooldownSeconds spaces repeated marks of one student.
	MarkCooldownSeconds int `toml:"mark_cooldown_seconds"`

	// BatchMarks buffers marks and flushes them periodically instead of
	// appending per sighting.
	BatchMarks bool `toml:"batch_marks"`
	BatchSize  int  `toml:"batch_size"`
}

// LedgerConfig selects the attendance store backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type LedgerConfig struct {
	Type string `toml:"type"` // "csv" or "memory"

	// Retry fields wrap the ledger in a bounded retry decorator when
	// RetryAttempts > 1.
	RetryAttempts     int `toml:"retry_attempts,omitempty"`
	RetryDelaySeconds int `toml:"retry_delay_seconds,omitempty"`
}

// JournalConfig locates the sqlite recognition journal.
type JournalConfig struct {
	Path string `toml:"path"`
}

// ClassifierConfig selects the classifier backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ClassifierConfig struct {
	Type string `toml:"type"` // "remote" or "static"

	// Remote-specific fields (only used when Type == "remote")
	URL            string `toml:"url,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`

	// Static-specific fields (only used when Type == "static")
	StaticLabel      int     `toml:"static_label,omitempty"`
	StaticConfidence float64 `toml:"static_confidence,omitempty"`
}

// CameraConfig selects the frame source.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CameraConfig struct {
	Type string `toml:"type"` // "dir" or "mjpeg"

	// Dir-specific fields (only used when Type == "dir")
	Dir  string `toml:"dir,omitempty"`
	FPS  int    `toml:"fps,omitempty"`
	Loop bool   `toml:"loop,omitempty"`

	// MJPEG-specific fields (only used when Type == "mjpeg")
	URL string `toml:"url,omitempty"`

	// Attach/read failure handling.
	RetryAttempts     int `toml:"retry_attempts"`
	RetryDelaySeconds int `toml:"retry_delay_seconds"`
}

// EvidenceConfig locates alert snapshots and the age key pair used to
// encrypt them at rest.
type EvidenceConfig struct {
	Dir     string `toml:"dir"`
	Encrypt bool   `toml:"encrypt"`

	// Encryptor selects the at-rest cipher: "age" (default) or "test".
	Encryptor      string `toml:"encryptor,omitempty"`
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// AlertsConfig tunes the alert state machine and its notifiers.
type AlertsConfig struct {
	CooldownSeconds int `toml:"cooldown_seconds"`
	DurationSeconds int `toml:"duration_seconds"`

	WebhookURL string `toml:"webhook_url,omitempty"`

	MQTTBroker   string `toml:"mqtt_broker,omitempty"`
	MQTTTopic    string `toml:"mqtt_topic,omitempty"`
	MQTTClientID string `toml:"mqtt_client_id,omitempty"`
}

// ArchiveConfig selects the offsite archive backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type string `toml:"type"` // "none", "memory", "filesystem", or "s3"

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSArchiveRoot string `toml:"fs_archive_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// ServeConfig tunes the local HTTP control surface. An empty
// AuthPassword leaves the API open for loopback-only setups.
type ServeConfig struct {
	Addr          string `toml:"addr"`
	AuthPassword  string `toml:"auth_password,omitempty"`
	JWTSecret     string `toml:"jwt_secret,omitempty"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
}

// NewConfig creates a new Config with the provided data directory and
// default values mirroring the station's classic tuning.
func NewConfig(dataDir string) *Config {
	return &Config{
		DataDir: dataDir,
		LogDir:  filepath.Join(dataDir, "log"),
		Recognition: RecognitionConfig{
			ConfidenceThreshold: 80,
			MarkCooldownSeconds: 300,
			BatchSize:           32,
		},
		Ledger: LedgerConfig{Type: "csv"},
		Journal: JournalConfig{
			Path: filepath.Join(dataDir, "journal.db"),
		},
		Classifier: ClassifierConfig{
			Type:           "remote",
			URL:            "http://127.0.0.1:8470",
			TimeoutSeconds: 5,
		},
		Camera: CameraConfig{
			Type:              "dir",
			Dir:               filepath.Join(dataDir, "frames"),
			FPS:               5,
			RetryAttempts:     3,
			RetryDelaySeconds: 2,
		},
		Evidence: EvidenceConfig{
			Dir:            filepath.Join(dataDir, "alerts"),
			PublicKeyPath:  filepath.Join(dataDir, "keys", "evidence.pub"),
			PrivateKeyPath: filepath.Join(dataDir, "keys", "evidence.key"),
		},
		Alerts: AlertsConfig{
			CooldownSeconds: 10,
			DurationSeconds: 30,
		},
		Archive: ArchiveConfig{Type: "none"},
		Serve: ServeConfig{
			Addr:          "127.0.0.1:8460",
			TokenTTLHours: 12,
		},
	}
}

// Validate checks ranges and tagged-union consistency. Called once at
// startup; a config that validates loads everywhere else without
// further checks.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if t := c.Recognition.ConfidenceThreshold; t < 0 || t > 100 {
		return fmt.Errorf("recognition.confidence_threshold must be 0..100, got %d", t)
	}
	if c.Recognition.MarkCooldownSeconds < 0 {
		return fmt.Errorf("recognition.mark_cooldown_seconds must not be negative")
	}
	switch c.Ledger.Type {
	case "csv", "memory":
	default:
		return fmt.Errorf("ledger.type must be csv or memory, got %q", c.Ledger.Type)
	}
	switch c.Classifier.Type {
	case "remote":
		if c.Classifier.URL == "" {
			return fmt.Errorf("classifier.url must be set for type=remote")
		}
	case "static":
	default:
		return fmt.Errorf("classifier.type must be remote or static, got %q", c.Classifier.Type)
	}
	switch c.Camera.Type {
	case "dir":
		if c.Camera.Dir == "" {
			return fmt.Errorf("camera.dir must be set for type=dir")
		}
	case "mjpeg":
		if c.Camera.URL == "" {
			return fmt.Errorf("camera.url must be set for type=mjpeg")
		}
	default:
		return fmt.Errorf("camera.type must be dir or mjpeg, got %q", c.Camera.Type)
	}
	if c.Camera.FPS < 0 {
		return fmt.Errorf("camera.fps must not be negative")
	}
	if c.Alerts.CooldownSeconds < 0 || c.Alerts.DurationSeconds <= 0 {
		return fmt.Errorf("alerts cooldown must be >= 0 and duration > 0")
	}
	switch c.Archive.Type {
	case "", "none", "memory":
	case "filesystem":
		if c.Archive.FSArchiveRoot == "" {
			return fmt.Errorf("archive.fs_archive_root must be set for type=filesystem")
		}
	case "s3":
		if c.Archive.S3Bucket == "" {
			return fmt.Errorf("archive.s3_bucket must be set for type=s3")
		}
	default:
		return fmt.Errorf("archive.type must be none, memory, filesystem or s3, got %q", c.Archive.Type)
	}
	switch c.Evidence.Encryptor {
	case "", "age", "test":
	default:
		return fmt.Errorf("evidence.encryptor must be age or test, got %q", c.Evidence.Encryptor)
	}
	if c.Evidence.Encrypt && (c.Evidence.PublicKeyPath == "" || c.Evidence.PrivateKeyPath == "") {
		return fmt.Errorf("evidence key paths must be set when evidence.encrypt is on")
	}
	if c.Serve.AuthPassword != "" && c.Serve.JWTSecret == "" {
		return fmt.Errorf("serve.jwt_secret must be set when serve.auth_password is set")
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
