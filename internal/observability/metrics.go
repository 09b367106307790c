package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coach_gateway_active_sessions",
		Help: "Number of active practice sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coach_gateway_sessions_total",
		Help: "Total number of practice sessions processed",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coach_gateway_session_duration_seconds",
		Help:    "Duration of practice sessions in seconds",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
	})

	// Frame analysis metrics
	framesAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_gateway_frames_total",
		Help: "Total landmark frames analyzed",
	}, []string{"kind"}) // kind: "video", "audio"

	frameLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coach_gateway_frame_latency_seconds",
		Help:    "Per-frame analysis latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	// STT metrics
	sttRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_gateway_stt_requests_total",
		Help: "Total number of STT requests",
	}, []string{"backend", "status"})

	sttLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coach_gateway_stt_latency_seconds",
		Help:    "STT processing latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	}, []string{"backend"})

	sttFailovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_gateway_stt_failovers_total",
		Help: "Total transcription backend failovers",
	}, []string{"from", "to"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coach_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coach_gateway_audio_bytes_total",
		Help: "Total audio bytes received from clients",
	})
)

// Metrics tracks metrics for a single practice session
type Metrics struct {
	sessionID    string
	startTime    time.Time
	sttStartTime time.Time
	mu           sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordFrame records an analyzed landmark frame
func (m *Metrics) RecordFrame(kind string, elapsed time.Duration) {
	framesAnalyzed.WithLabelValues(kind).Inc()
	frameLatency.Observe(elapsed.Seconds())
}

// RecordSTTStart records the start of an STT request
func (m *Metrics) RecordSTTStart() {
	m.mu.Lock()
	m.sttStartTime = time.Now()
	m.mu.Unlock()
}

// RecordSTTEnd records the end of an STT request
func (m *Metrics) RecordSTTEnd(backend string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sttStartTime.IsZero() {
		sttLatency.WithLabelValues(backend).Observe(time.Since(m.sttStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	sttRequests.WithLabelValues(backend, status).Inc()
}

// RecordFailover records a transcription backend failover
func (m *Metrics) RecordFailover(from, to string) {
	sttFailovers.WithLabelValues(from, to).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes received
func (m *Metrics) RecordAudioBytes(bytes int64) {
	audioBytesProcessed.Add(float64(bytes))
}

// UpdateCircuitBreakerState updates the circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments the circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
