package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsEmittedTotal   *prometheus.CounterVec
	EventsReceivedTotal  *prometheus.CounterVec
	EventsDroppedTotal   *prometheus.CounterVec
	MessagesQueuedTotal  prometheus.Counter
	MessagesFlushedTotal prometheus.Counter
	QueueDepth           prometheus.Gauge
	ReconnectsTotal      *prometheus.CounterVec
}

// New registers the chat client metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsEmittedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "petchat_chat_events_emitted_total",
			Help: "Total number of socket events written to the chat server",
		}, []string{"event"}),
		EventsReceivedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "petchat_chat_events_received_total",
			Help: "Total number of socket events read from the chat server",
		}, []string{"event"}),
		EventsDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "petchat_chat_events_dropped_total",
			Help: "Total number of outgoing events dropped without an error to the caller",
		}, []string{"event", "reason"}),
		MessagesQueuedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "petchat_chat_messages_queued_total",
			Help: "Total number of messages queued while the transport was down",
		}),
		MessagesFlushedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "petchat_chat_messages_flushed_total",
			Help: "Total number of queued messages delivered after reconnect",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "petchat_chat_offline_queue_depth",
			Help: "Messages currently waiting in the offline queue",
		}),
		ReconnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "petchat_chat_reconnects_total",
			Help: "Total number of reconnect attempts by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementEmitted(event string) {
	m.EventsEmittedTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) IncrementReceived(event string) {
	m.EventsReceivedTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) IncrementDropped(event, reason string) {
	m.EventsDroppedTotal.WithLabelValues(event, reason).Inc()
}

func (m *Metrics) RecordQueued(depth int) {
	m.MessagesQueuedTotal.Inc()
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) RecordFlushed(sent, depth int) {
	m.MessagesFlushedTotal.Add(float64(sent))
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) IncrementReconnect(outcome string) {
	m.ReconnectsTotal.WithLabelValues(outcome).Inc()
}
