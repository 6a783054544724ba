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
		Name: "dialogue_gateway_active_sessions",
		Help: "Number of active dialogue sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialogue_gateway_sessions_total",
		Help: "Total number of sessions handled",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dialogue_gateway_session_duration_seconds",
		Help:    "Duration of dialogue sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Turn metrics
	turnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialogue_gateway_turns_total",
		Help: "Total number of completed conversation turns",
	})

	bargeInsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialogue_gateway_barge_ins_total",
		Help: "Total number of barge-in cancellations",
	})

	// Pipeline stage metrics
	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialogue_gateway_stage_requests_total",
		Help: "Total number of pipeline stage executions",
	}, []string{"stage", "status"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dialogue_gateway_stage_latency_seconds",
		Help:    "Pipeline stage latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialogue_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dialogue_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialogue_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialogue_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// Pipeline stage labels.
const (
	StageRecognition = "recognition"
	StageResponse    = "response"
	StageSynthesis   = "synthesis"
)

// SessionMetrics tracks metrics for a single session.
type SessionMetrics struct {
	mu         sync.Mutex
	startTime  time.Time
	stageStart map[string]time.Time
}

// NewSessionMetrics creates a metrics tracker for one session and records
// the session start.
func NewSessionMetrics() *SessionMetrics {
	activeSessions.Inc()
	totalSessions.Inc()
	return &SessionMetrics{
		startTime:  time.Now(),
		stageStart: make(map[string]time.Time),
	}
}

// RecordSessionEnd records the end of a session.
func (m *SessionMetrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordStageStart marks the beginning of a pipeline stage.
func (m *SessionMetrics) RecordStageStart(stage string) {
	m.mu.Lock()
	m.stageStart[stage] = time.Now()
	m.mu.Unlock()
}

// RecordStageEnd records completion of a pipeline stage.
func (m *SessionMetrics) RecordStageEnd(stage string, success bool) {
	m.mu.Lock()
	start, ok := m.stageStart[stage]
	delete(m.stageStart, stage)
	m.mu.Unlock()

	if ok {
		stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	stageRequests.WithLabelValues(stage, status).Inc()
}

// RecordTurn records a completed conversation turn.
func (m *SessionMetrics) RecordTurn() {
	turnsTotal.Inc()
}

// RecordBargeIn records a barge-in cancellation.
func (m *SessionMetrics) RecordBargeIn() {
	bargeInsTotal.Inc()
}

// RecordError records an error.
func (m *SessionMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed.
func (m *SessionMetrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates the circuit breaker state metric.
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments the failure counter.
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
