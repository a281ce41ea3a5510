// Package telemetry exposes the monitor's own Prometheus metrics.
package telemetry

import (
	"context"
	"net/http"
	"sync"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "testbed_monitor"

// Metrics holds the collectors served on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	streamsActive *prometheus.GaugeVec
	messagesSent  *prometheus.CounterVec
	streamsEnded  *prometheus.CounterVec
	operations    *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		streamsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Open subscriber streams by kind.",
		}, []string{"stream"}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_sent_total",
			Help:      "Messages delivered to subscribers by stream kind.",
		}, []string{"stream"}),
		streamsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_ended_total",
			Help:      "Finished streams by kind and outcome.",
		}, []string{"stream", "outcome"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Lifecycle operations by component, action and result.",
		}, []string{"component", "action", "result"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOperation counts one lifecycle operation. The result label is "ok"
// or the error kind.
func (m *Metrics) ObserveOperation(component, action string, err error) {
	m.operations.WithLabelValues(component, action, outcome(err)).Inc()
}

// StreamEnded counts a finished stream with its outcome.
func (m *Metrics) StreamEnded(stream string, err error) {
	m.streamsEnded.WithLabelValues(stream, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return lib.KindOf(err).String()
}

// Track wraps sender so that sends and the stream's lifetime are counted.
func (m *Metrics) Track(stream string, sender lib.Sender) lib.Sender {
	m.streamsActive.WithLabelValues(stream).Inc()
	return &trackedSender{Sender: sender, metrics: m, stream: stream}
}

type trackedSender struct {
	lib.Sender
	metrics *Metrics
	stream  string
	once    sync.Once
}

func (t *trackedSender) Send(ctx context.Context, v any) error {
	if err := t.Sender.Send(ctx, v); err != nil {
		return err
	}
	t.metrics.messagesSent.WithLabelValues(t.stream).Inc()
	return nil
}

func (t *trackedSender) Close(code lib.CloseCode, reason string) error {
	t.once.Do(func() {
		t.metrics.streamsActive.WithLabelValues(t.stream).Dec()
	})
	return t.Sender.Close(code, reason)
}
