// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and
// correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter
	Ticks           prometheus.Counter
	FetchErrors     *prometheus.CounterVec // label: source
	Notifications   *prometheus.CounterVec // label: result

	// Histograms (seconds)
	TickDuration prometheus.Observer

	// Gauges
	ActiveSessions     prometheus.Gauge
	LedgerParticipants prometheus.Gauge
	CircuitOpenGauge   prometheus.Gauge // 1=open,0=closed
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_sessions_started_total", Help: "Number of tracked sessions started"})
		SessionsStopped = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_sessions_stopped_total", Help: "Number of tracked sessions stopped by link removal"})
		Ticks = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_ticks_total", Help: "Number of completed polling ticks"})
		FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tracker_fetch_errors_total", Help: "Transient fetch failures during ticks"}, []string{"source"})
		Notifications = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tracker_notifications_total", Help: "Channel notifications by result"}, []string{"result"})
		TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "tracker_tick_duration_seconds", Help: "Polling tick duration seconds", Buckets: prometheus.DefBuckets})
		ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{Name: "tracker_sessions_active", Help: "Current number of tracked sessions"})
		LedgerParticipants = promauto.NewGauge(prometheus.GaugeOpts{Name: "tracker_ledger_participants", Help: "Distinct handles in the participation ledger"})
		CircuitOpenGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "tracker_metadata_circuit_open", Help: "Stream metadata circuit breaker open=1 closed=0"})
	})
}

// IncSessionsStarted counts a newly started session.
func IncSessionsStarted() {
	if SessionsStarted != nil {
		SessionsStarted.Inc()
	}
}

// IncSessionsStopped counts a session stopped by link removal.
func IncSessionsStopped() {
	if SessionsStopped != nil {
		SessionsStopped.Inc()
	}
}

// SetActiveSessions records the current session count.
func SetActiveSessions(n int) {
	if ActiveSessions != nil {
		ActiveSessions.Set(float64(n))
	}
}

// ObserveTick counts a finished tick and its duration.
func ObserveTick(d time.Duration) {
	if Ticks != nil {
		Ticks.Inc()
	}
	if TickDuration != nil {
		TickDuration.Observe(d.Seconds())
	}
}

// IncFetchError counts a transient fetch failure for source.
func IncFetchError(source string) {
	if FetchErrors != nil {
		FetchErrors.WithLabelValues(source).Inc()
	}
}

// IncNotification counts a notification attempt.
func IncNotification(ok bool) {
	if Notifications == nil {
		return
	}
	if ok {
		Notifications.WithLabelValues("sent").Inc()
	} else {
		Notifications.WithLabelValues("failed").Inc()
	}
}

// SetLedgerParticipants records the ledger size.
func SetLedgerParticipants(n int) {
	if LedgerParticipants != nil {
		LedgerParticipants.Set(float64(n))
	}
}

// UpdateCircuitGauge sets gauge to 1 if open else 0.
func UpdateCircuitGauge(open bool) {
	if CircuitOpenGauge == nil {
		return
	}
	if open {
		CircuitOpenGauge.Set(1)
	} else {
		CircuitOpenGauge.Set(0)
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
