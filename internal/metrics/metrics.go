package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"facemark/internal/attend"
)

const metricPrefix = "facemark_"

// PipelineMetrics implements attend.Recorder on a Prometheus registry.
// One instance serves the whole process; sessions come and go underneath
// it.
type PipelineMetrics struct {
	frames        prometheus.Counter
	faces         prometheus.Counter
	marks         *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	classifierErr prometheus.Counter
	sourceRetries prometheus.Counter
	sessions      prometheus.Counter
	sessionActive prometheus.Gauge
}

var _ attend.Recorder = (*PipelineMetrics)(nil)

// NewPipelineMetrics creates and registers the pipeline counters.
// Passing prometheus.DefaultRegisterer wires them into the default
// /metrics exposition; tests pass a fresh registry.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "frames_processed_total",
			Help: "Total frames run through the recognition pipeline",
		}),
		faces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "faces_detected_total",
			Help: "Total faces seen across all frames",
		}),
		marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "marks_total",
			Help: "Total attendance mark attempts by result",
		}, []string{"result"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "alerts_total",
			Help: "Total unknown-face alert triggers by result",
		}, []string{"result"}),
		classifierErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "classifier_errors_total",
			Help: "Total classifier transport failures",
		}),
		sourceRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "source_retries_total",
			Help: "Total frame source read retries",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "sessions_total",
			Help: "Total scan sessions started",
		}),
		sessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "session_active",
			Help: "Whether a scan session is currently running (0 or 1)",
		}),
	}

	reg.MustRegister(
		m.frames,
		m.faces,
		m.marks,
		m.alerts,
		m.classifierErr,
		m.sourceRetries,
		m.sessions,
		m.sessionActive,
	)
	return m
}

func (m *PipelineMetrics) FrameProcessed() { m.frames.Inc() }

func (m *PipelineMetrics) FacesDetected(n int) {
	if n > 0 {
		m.faces.Add(float64(n))
	}
}

func (m *PipelineMetrics) MarkCommitted()    { m.marks.WithLabelValues("committed").Inc() }
func (m *PipelineMetrics) MarkDeduplicated() { m.marks.WithLabelValues("deduplicated").Inc() }
func (m *PipelineMetrics) MarkFailed()       { m.marks.WithLabelValues("failed").Inc() }

func (m *PipelineMetrics) AlertFired()      { m.alerts.WithLabelValues("fired").Inc() }
func (m *PipelineMetrics) AlertSuppressed() { m.alerts.WithLabelValues("suppressed").Inc() }

func (m *PipelineMetrics) ClassifierError() { m.classifierErr.Inc() }
func (m *PipelineMetrics) SourceRetry()     { m.sourceRetries.Inc() }

func (m *PipelineMetrics) SessionStarted() {
	m.sessions.Inc()
	m.sessionActive.Set(1)
}

func (m *PipelineMetrics) SessionStopped() {
	m.sessionActive.Set(0)
}
