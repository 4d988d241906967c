// internal/service/metrics.go
package service

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"makino-adapter/internal/model"
	"makino-adapter/pkg/link"
)

// Refresh outcomes
const (
	RefreshSuccess = "success"
	RefreshPartial = "partial"
	RefreshFailed  = "failed"
	RefreshDelayed = "delayed"
)

// Metrics exposes the adapter counters and gauges. It observes the session negotiator.
type Metrics struct {
	probeAttempts   *prometheus.CounterVec
	connections     *prometheus.CounterVec
	disconnects     *prometheus.CounterVec
	throttled       *prometheus.CounterVec
	connected       *prometheus.GaugeVec
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	toolCount       prometheus.Gauge
	missingFields   prometheus.Gauge
	lastSuccess     prometheus.Gauge
	writes          *prometheus.CounterVec
}

// NewMetrics creates the adapter metrics and registers them
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "makino_probe_attempts_total",
			Help: "ProX version probe attempts by version and result code",
		}, []string{"version", "code", "wrong_version"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "makino_connections_total",
			Help: "Successful session allocations",
		}, []string{"channel", "version"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "makino_disconnects_total",
			Help: "Session teardowns",
		}, []string{"channel"}),
		throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "makino_connection_throttled_total",
			Help: "Connection attempts refused by the cooldown",
		}, []string{"channel"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "makino_session_connected",
			Help: "1 while the channel holds a valid handle",
		}, []string{"channel"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "makino_refresh_total",
			Help: "Tool data refreshes by outcome",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "makino_refresh_duration_seconds",
			Help:    "Duration of a tool data refresh",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		toolCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "makino_registered_tools",
			Help: "Tool positions in the published snapshot",
		}),
		missingFields: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "makino_missing_fields",
			Help: "Fields missing from the published snapshot",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "makino_last_refresh_timestamp_seconds",
			Help: "Unix time of the last published snapshot",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "makino_tool_data_writes_total",
			Help: "Tool data item writes by outcome",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.probeAttempts, m.connections, m.disconnects, m.throttled, m.connected,
		m.refreshes, m.refreshDuration, m.toolCount, m.missingFields, m.lastSuccess, m.writes,
	)
	return m
}

func (m *Metrics) ProbeAttempt(version link.Version, code link.ResultCode, wrongVersion bool) {
	m.probeAttempts.WithLabelValues(version.String(), code.String(), strconv.FormatBool(wrongVersion)).Inc()
}

func (m *Metrics) Connected(channel link.Channel, version link.Version) {
	m.connections.WithLabelValues(string(channel), version.String()).Inc()
	m.connected.WithLabelValues(string(channel)).Set(1)
}

func (m *Metrics) Disconnected(channel link.Channel) {
	m.disconnects.WithLabelValues(string(channel)).Inc()
	m.connected.WithLabelValues(string(channel)).Set(0)
}

func (m *Metrics) Throttled(channel link.Channel) {
	m.throttled.WithLabelValues(string(channel)).Inc()
}

// ObserveRefresh records the outcome of one refresh; data is nil unless a snapshot was published
func (m *Metrics) ObserveRefresh(result string, duration time.Duration, data *model.ToolLifeData) {
	m.refreshes.WithLabelValues(result).Inc()
	m.refreshDuration.Observe(duration.Seconds())
	if data != nil {
		m.toolCount.Set(float64(data.ToolCount()))
		m.missingFields.Set(float64(len(data.Missing)))
		m.lastSuccess.Set(float64(data.AcquiredAt.Unix()))
	}
}

// ObserveWrite records the outcome of a tool data write
func (m *Metrics) ObserveWrite(success bool) {
	result := RefreshSuccess
	if !success {
		result = RefreshFailed
	}
	m.writes.WithLabelValues(result).Inc()
}
