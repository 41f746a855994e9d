// Package metrics provides Prometheus metrics for session, transport, and
// realtime operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for SDK operations.
type Metrics struct {
	enabled bool

	// Session metrics
	loginTotal    *prometheus.CounterVec
	refreshTotal  *prometheus.CounterVec
	logoutTotal   *prometheus.CounterVec
	forcedLogouts prometheus.Counter

	// Transport metrics
	retriedRequests prometheus.Counter
	requestDuration prometheus.Histogram

	// Realtime metrics
	framesTotal     *prometheus.CounterVec
	droppedFrames   prometheus.Counter
	reconnectsTotal prometheus.Counter
	connectionState prometheus.Gauge

	// Board metrics
	transitionsTotal *prometheus.CounterVec
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	// Session metrics
	m.loginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_login_total",
		Help: "Total login attempts",
	}, []string{"result"})

	m.refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_refresh_total",
		Help: "Total access credential refresh attempts",
	}, []string{"result"})

	m.logoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_logout_total",
		Help: "Total logouts",
	}, []string{"result"})

	m.forcedLogouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskdesk_forced_logout_total",
		Help: "Total forced logouts after a failed refresh-and-retry",
	})

	// Transport metrics
	m.retriedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskdesk_request_retries_total",
		Help: "Total requests re-issued after a refresh on 401",
	})

	m.requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskdesk_request_duration_seconds",
		Help:    "REST request duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Realtime metrics
	m.framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_realtime_frames_total",
		Help: "Total realtime frames received",
	}, []string{"type"})

	m.droppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskdesk_realtime_dropped_frames_total",
		Help: "Total malformed realtime frames dropped",
	})

	m.reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskdesk_realtime_reconnects_total",
		Help: "Total realtime reconnect attempts",
	})

	m.connectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskdesk_realtime_connection_state",
		Help: "Realtime connection state (0=disconnected, 1=connected)",
	})

	// Board metrics
	m.transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_board_transitions_total",
		Help: "Total board status transitions requested",
	}, []string{"result"})

	return m
}

// RecordLogin records a login attempt.
func (m *Metrics) RecordLogin(result string) {
	if !m.enabled {
		return
	}
	m.loginTotal.WithLabelValues(result).Inc()
}

// RecordRefresh records a credential refresh attempt.
func (m *Metrics) RecordRefresh(result string) {
	if !m.enabled {
		return
	}
	m.refreshTotal.WithLabelValues(result).Inc()
}

// RecordLogout records a logout.
func (m *Metrics) RecordLogout(result string) {
	if !m.enabled {
		return
	}
	m.logoutTotal.WithLabelValues(result).Inc()
}

// RecordForcedLogout records a logout forced by a failed refresh.
func (m *Metrics) RecordForcedLogout() {
	if !m.enabled {
		return
	}
	m.forcedLogouts.Inc()
}

// RecordRetriedRequest records a request re-issued after a 401 refresh.
func (m *Metrics) RecordRetriedRequest() {
	if !m.enabled {
		return
	}
	m.retriedRequests.Inc()
}

// ObserveRequestDuration records a REST request duration.
func (m *Metrics) ObserveRequestDuration(seconds float64) {
	if !m.enabled {
		return
	}
	m.requestDuration.Observe(seconds)
}

// RecordFrame records a received realtime frame by type.
func (m *Metrics) RecordFrame(msgType string) {
	if !m.enabled {
		return
	}
	m.framesTotal.WithLabelValues(msgType).Inc()
}

// RecordDroppedFrame records a malformed realtime frame.
func (m *Metrics) RecordDroppedFrame() {
	if !m.enabled {
		return
	}
	m.droppedFrames.Inc()
}

// RecordReconnect records a realtime reconnect attempt.
func (m *Metrics) RecordReconnect() {
	if !m.enabled {
		return
	}
	m.reconnectsTotal.Inc()
}

// SetConnected sets the realtime connection state gauge.
func (m *Metrics) SetConnected(connected bool) {
	if !m.enabled {
		return
	}
	state := 0.0
	if connected {
		state = 1.0
	}
	m.connectionState.Set(state)
}

// RecordTransition records a board transition request result.
func (m *Metrics) RecordTransition(result string) {
	if !m.enabled {
		return
	}
	m.transitionsTotal.WithLabelValues(result).Inc()
}
