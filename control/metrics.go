// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for connection, handshake and frame activity.
// Metrics implements protocol.Observer so an Engine can feed it directly.

package control

import (
	"strconv"
	"time"

	"github.com/momentics/wsproto/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "wsproto").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for handshake duration.
	Buckets []float64

	// Registry receives the collectors.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the collectors.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "wsproto",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors. The zero value is not usable; a nil
// *Metrics is, and records nothing.
type Metrics struct {
	connections       prometheus.Gauge
	handshakes        *prometheus.CounterVec
	handshakeDuration prometheus.Histogram
	framesReceived    *prometheus.CounterVec
	framesSent        *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	protocolErrors    *prometheus.CounterVec
	bytesReceived     prometheus.Counter
}

// NewMetrics registers the collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		}, labels)
	}

	return &Metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "connections_active",
			Help:        "Number of open WebSocket connections",
			ConstLabels: cfg.ConstLabels,
		}),
		handshakes: counterVec("handshakes_total", "Opening handshakes by result", "result"),
		handshakeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "handshake_duration_seconds",
			Help:        "Time from first handshake byte to the 101 response",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}),
		framesReceived:   counterVec("frames_received_total", "Frames received by opcode", "opcode"),
		framesSent:       counterVec("frames_sent_total", "Frames sent by opcode", "opcode"),
		messagesReceived: counterVec("messages_received_total", "Messages received by kind", "kind"),
		protocolErrors:   counterVec("protocol_errors_total", "Protocol violations by close code", "code"),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "payload_bytes_received_total",
			Help:        "Payload bytes of received frames",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

// ConnectionOpened records a connection entering the open state.
func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

// ConnectionClosed records an open connection going away.
func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

// Handshake records a handshake outcome ("accepted", "rejected", ...).
func (m *Metrics) Handshake(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
	if result == "accepted" {
		m.handshakeDuration.Observe(took.Seconds())
	}
}

// FrameReceived implements protocol.Observer.
func (m *Metrics) FrameReceived(op protocol.Opcode, n int) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(op.String()).Inc()
	m.bytesReceived.Add(float64(n))
}

// FrameSent implements protocol.Observer.
func (m *Metrics) FrameSent(op protocol.Opcode, _ int) {
	if m != nil {
		m.framesSent.WithLabelValues(op.String()).Inc()
	}
}

// MessageReceived implements protocol.Observer.
func (m *Metrics) MessageReceived(kind protocol.MessageKind, _ int) {
	if m != nil {
		m.messagesReceived.WithLabelValues(kind.String()).Inc()
	}
}

// ProtocolViolation implements protocol.Observer.
func (m *Metrics) ProtocolViolation(code protocol.CloseCode) {
	if m != nil {
		m.protocolErrors.WithLabelValues(strconv.Itoa(int(code))).Inc()
	}
}

var _ protocol.Observer = (*Metrics)(nil)
