// Package metrics exports session activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Versifine/mcclient/internal/protocol"
)

const DefaultNamespace = "mcclient"

// Collector implements session.Observer.
type Collector struct {
	registry *prometheus.Registry

	activeSessions prometheus.Gauge
	sessionsEnded  *prometheus.CounterVec
	bytesRead      prometheus.Counter
	bytesWritten   prometheus.Counter
	packetsRead    *prometheus.CounterVec
	packetsWritten *prometheus.CounterVec
	stateChanges   *prometheus.CounterVec
	framesDropped  prometheus.Counter
	errors         *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of connected sessions",
		}),
		sessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Sessions ended by reason",
		}, []string{"reason"}),
		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Bytes read from the transport",
		}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes written to the transport",
		}),
		packetsRead: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_read_total",
			Help:      "Decoded inbound packets by state and name",
		}, []string{"state", "name"}),
		packetsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_written_total",
			Help:      "Encoded outbound packets by state and name",
		}, []string{"state", "name"}),
		stateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_changes_total",
			Help:      "Protocol state transitions by target state",
		}, []string{"state"}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped after a decompression failure",
		}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Session errors by type",
		}, []string{"type"}),
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) SessionStarted() { c.activeSessions.Inc() }

func (c *Collector) SessionEnded(reason string) {
	c.activeSessions.Dec()
	c.sessionsEnded.WithLabelValues(reason).Inc()
}

func (c *Collector) BytesRead(n int)    { c.bytesRead.Add(float64(n)) }
func (c *Collector) BytesWritten(n int) { c.bytesWritten.Add(float64(n)) }

func (c *Collector) PacketRead(meta protocol.Metadata) {
	c.packetsRead.WithLabelValues(meta.State.String(), meta.Name).Inc()
}

func (c *Collector) PacketWritten(meta protocol.Metadata) {
	c.packetsWritten.WithLabelValues(meta.State.String(), meta.Name).Inc()
}

func (c *Collector) StateChanged(_, new protocol.State) {
	c.stateChanges.WithLabelValues(new.String()).Inc()
}

func (c *Collector) FrameDropped(error) { c.framesDropped.Inc() }

func (c *Collector) Error(err error) { c.errors.WithLabelValues(errorType(err)).Inc() }

// errorType keeps the label set small.
func errorType(err error) string {
	var (
		framing    *protocol.FramingError
		decompress *protocol.DecompressionError
		unknown    *protocol.UnknownPacketError
		codec      *protocol.CodecError
		setup      *protocol.EncryptionSetupError
		auth       *protocol.AuthenticationError
		transport  *protocol.TransportError
	)
	switch {
	case errors.As(err, &framing):
		return "framing"
	case errors.As(err, &decompress):
		return "decompression"
	case errors.As(err, &unknown):
		return "unknown_packet"
	case errors.As(err, &codec):
		return "codec"
	case errors.As(err, &setup):
		return "encryption"
	case errors.As(err, &auth):
		return "authentication"
	case errors.As(err, &transport):
		return "transport"
	}
	return "other"
}

// Handler serves /metrics from the collector's registry and a /healthz health check.
func (c *Collector) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}
