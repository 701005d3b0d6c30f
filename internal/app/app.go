package app

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"facemark/internal/archive"
	"facemark/internal/attend"
	"facemark/internal/camera"
	"facemark/internal/config"
	"facemark/internal/encryption"
	"facemark/internal/evidence"
	"facemark/internal/faceservice"
	"facemark/internal/journal"
	"facemark/internal/ledger"
	"facemark/internal/metrics"
	"facemark/internal/notify"
)

// App is the application layer between the outer surfaces (CLI, HTTP)
// and the attendance service. It constructs every adapter from config,
// exposes the wired service, and releases their resources on Close.
type App struct {
	cfg        *config.Config
	service    *attend.Service
	journal    *journal.SQLiteJournal
	encryptor  attend.Encryptor
	evidence   attend.EvidenceStore
	registry   *prometheus.Registry
	log        attend.Logger
	logFile    *os.File
	stopNotify func()
}

// New creates a fully wired App from the given config. operation
// identifies the command being run (e.g. "Scan", "Serve") and becomes
// part of the run's log identity. The caller must call Close when done.
func New(cfg *config.Config, operation string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// The journal and csv ledger both live under the data dir.
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	run := NewRun(operation, time.Now())
	logger, logFile, err := newLogger(cfg.LogDir, run.ID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	jnl, err := journal.NewJournalFromConfig(cfg.Journal)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	led, err := ledger.NewLedgerFromConfig(cfg.Ledger, cfg.DataDir, log)
	if err != nil {
		jnl.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating ledger: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Evidence)
	if err != nil {
		jnl.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	store, err := evidence.NewStoreFromConfig(cfg.Evidence, enc)
	if err != nil {
		jnl.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating evidence store: %w", err)
	}

	classifier, detector, err := faceservice.NewFromConfig(cfg.Classifier)
	if err != nil {
		jnl.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating classifier: %w", err)
	}

	opener, err := camera.NewOpenerFromConfig(cfg.Camera)
	if err != nil {
		jnl.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating frame source: %w", err)
	}

	notifier, stopNotify, err := notify.NewNotifierFromConfig(cfg.Alerts)
	if err != nil {
		jnl.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating notifier: %w", err)
	}

	// Metrics register on a per-App registry, never the global default.
	registry := prometheus.NewRegistry()
	rec := metrics.NewPipelineMetrics(registry)

	svc := attend.NewService(attend.ServiceParams{
		Config: attend.ServiceConfig{
			ConfidenceThreshold: cfg.Recognition.ConfidenceThreshold,
			MarkCooldown:        time.Duration(cfg.Recognition.MarkCooldownSeconds) * time.Second,
			AlertCooldown:       time.Duration(cfg.Alerts.CooldownSeconds) * time.Second,
			AlertDuration:       time.Duration(cfg.Alerts.DurationSeconds) * time.Second,
			BatchMarks:          cfg.Recognition.BatchMarks,
			BatchSize:           cfg.Recognition.BatchSize,
			SourceRetries:       cfg.Camera.RetryAttempts,
			SourceRetryDelay:    time.Duration(cfg.Camera.RetryDelaySeconds) * time.Second,
		},
		Ledger:     led,
		Journal:    jnl,
		Evidence:   store,
		Classifier: classifier,
		Detector:   detector,
		Opener:     opener,
		Notifier:   notifier,
		Logger:     log,
		Metrics:    rec,
	})

	log.Debug("run started", "op", run.Operation)

	return &App{
		cfg:        cfg,
		service:    svc,
		journal:    jnl,
		encryptor:  enc,
		evidence:   store,
		registry:   registry,
		log:        log,
		logFile:    logFile,
		stopNotify: stopNotify,
	}, nil
}

// Service returns the wired attendance service.
func (a *App) Service() *attend.Service { return a.service }

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Journal exposes the sqlite journal for queries beyond the core
// interface, such as session listings.
func (a *App) Journal() *journal.SQLiteJournal { return a.journal }

// Encryptor exposes the evidence encryptor for key setup and unlock.
func (a *App) Encryptor() attend.Encryptor { return a.encryptor }

// Evidence exposes the evidence store for snapshot review.
func (a *App) Evidence() attend.EvidenceStore { return a.evidence }

// Logger returns the run-scoped logger.
func (a *App) Logger() attend.Logger { return a.log }

// Gatherer returns the metrics registry backing the /metrics exposition.
func (a *App) Gatherer() prometheus.Gatherer { return a.registry }

// Archiver builds the configured offsite archive backend. Built on
// demand because most commands never touch it.
func (a *App) Archiver() (attend.Archiver, error) {
	return archive.NewArchiverFromConfig(a.cfg.Archive)
}

// Close stops any running session and releases the journal, the
// notifier channels, and the log file.
func (a *App) Close() error {
	var firstErr error

	if err := a.service.Close(); err != nil {
		firstErr = fmt.Errorf("stopping session: %w", err)
	}

	a.stopNotify()

	if err := a.journal.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing journal: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
