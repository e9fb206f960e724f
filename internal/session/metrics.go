package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts session traffic. A nil *Metrics records nothing.
type Metrics struct {
	FramesSent     *prometheus.CounterVec
	FramesReceived prometheus.Counter
	ProtocolErrors prometheus.Counter
	Connects       *prometheus.CounterVec
	Disconnects    *prometheus.CounterVec
	Connected      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paramlink",
			Subsystem: "session",
			Name:      "frames_sent_total",
			Help:      "Frames written to the endpoint, by kind (command or heartbeat)",
		}, []string{"kind"}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paramlink",
			Subsystem: "session",
			Name:      "frames_received_total",
			Help:      "Response frames decoded from the endpoint",
		}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paramlink",
			Subsystem: "session",
			Name:      "protocol_errors_total",
			Help:      "Inbound frames the codec rejected",
		}),
		Connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paramlink",
			Subsystem: "session",
			Name:      "connects_total",
			Help:      "Connection attempts, by result (ok or error)",
		}, []string{"result"}),
		Disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paramlink",
			Subsystem: "session",
			Name:      "disconnects_total",
			Help:      "Ended sessions, by reason (clean, io, protocol, heartbeat)",
		}, []string{"reason"}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "paramlink",
			Subsystem: "session",
			Name:      "connected",
			Help:      "1 while a session is connected",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesSent,
			m.FramesReceived,
			m.ProtocolErrors,
			m.Connects,
			m.Disconnects,
			m.Connected,
		)
	}
	return m
}

func (m *Metrics) frameSent(kind string) {
	if m != nil {
		m.FramesSent.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) frameReceived() {
	if m != nil {
		m.FramesReceived.Inc()
	}
}

func (m *Metrics) protocolError() {
	if m != nil {
		m.ProtocolErrors.Inc()
	}
}

func (m *Metrics) connectResult(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Connects.WithLabelValues("error").Inc()
		return
	}
	m.Connects.WithLabelValues("ok").Inc()
	m.Connected.Set(1)
}

func (m *Metrics) disconnected(err error) {
	if m == nil {
		return
	}
	m.Disconnects.WithLabelValues(reasonLabel(err)).Inc()
	m.Connected.Set(0)
}
