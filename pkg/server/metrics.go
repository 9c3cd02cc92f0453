package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the relay's Prometheus instruments.
type Metrics struct {
	activeSessions prometheus.Gauge
	sessionsTotal  prometheus.Counter
	disconnects    prometheus.Counter
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	routerErrors   *prometheus.CounterVec
	pingEvictions  prometheus.Counter
	imagesRelayed  prometheus.Counter
	orphanBinaries prometheus.Counter
}

// NewMetrics creates and registers the relay metrics. Pass nil to use
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatapp_sessions_active",
			Help: "Current number of open websocket sessions.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatapp_sessions_total",
			Help: "Total sessions accepted since start.",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatapp_disconnects_total",
			Help: "Total session disconnects since start.",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatapp_frames_received_total",
			Help: "Structured frames received, by type.",
		}, []string{"type"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatapp_frames_sent_total",
			Help: "Structured frames sent, by type.",
		}, []string{"type"}),
		routerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatapp_router_errors_total",
			Help: "Frame validation or routing errors, by class.",
		}, []string{"class"}),
		pingEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatapp_ping_evictions_total",
			Help: "Connections evicted after an unanswered liveness probe.",
		}),
		imagesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatapp_images_relayed_total",
			Help: "Binary image transfers completed.",
		}),
		orphanBinaries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatapp_orphan_binary_frames_total",
			Help: "Binary frames dropped for lack of staged metadata.",
		}),
	}

	reg.MustRegister(
		m.activeSessions,
		m.sessionsTotal,
		m.disconnects,
		m.framesReceived,
		m.framesSent,
		m.routerErrors,
		m.pingEvictions,
		m.imagesRelayed,
		m.orphanBinaries,
	)

	return m
}

func (m *Metrics) RecordActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) RecordSessionCreated() {
	m.sessionsTotal.Inc()
}

func (m *Metrics) RecordSessionDisconnected() {
	m.disconnects.Inc()
}

func (m *Metrics) RecordFrameReceived(frameType string) {
	m.framesReceived.WithLabelValues(frameType).Inc()
}

func (m *Metrics) RecordFrameSent(frameType string) {
	m.framesSent.WithLabelValues(frameType).Inc()
}

func (m *Metrics) RecordRouterError(class string) {
	m.routerErrors.WithLabelValues(class).Inc()
}

func (m *Metrics) RecordPingEviction() {
	m.pingEvictions.Inc()
}

func (m *Metrics) RecordImageRelayed() {
	m.imagesRelayed.Inc()
}

func (m *Metrics) RecordOrphanBinary() {
	m.orphanBinaries.Inc()
}
