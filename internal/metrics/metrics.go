// Package metrics holds vocabot's Prometheus collectors.
//
// Collectors live in a private registry so tests can build independent sets.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	EventsPublished  *prometheus.CounterVec
	EventsDispatched *prometheus.CounterVec
	HandlerFailures  *prometheus.CounterVec
	EventsDropped    prometheus.Counter
	QueueDepth       prometheus.Gauge

	ReminderJobs  prometheus.Gauge
	RemindersSent *prometheus.CounterVec
	ReconcileRuns *prometheus.CounterVec
	TasksDropped  *prometheus.CounterVec
	TaskDuration  prometheus.Histogram
	MessagesSent  *prometheus.CounterVec
}

// New builds the collector set. withRuntime adds the Go and process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vocabot_events_published_total",
			Help: "Events accepted by the event bus, by kind",
		}, []string{"kind"}),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vocabot_events_dispatched_total",
			Help: "Events dispatched to their subscribers, by kind",
		}, []string{"kind"}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vocabot_event_handler_failures_total",
			Help: "Subscriber invocations that returned an error or panicked, by kind",
		}, []string{"kind"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vocabot_events_dropped_total",
			Help: "Events published after the bus stopped",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vocabot_event_queue_depth",
			Help: "Events waiting for dispatch",
		}),
		ReminderJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vocabot_reminder_jobs",
			Help: "Installed per-user reminder jobs",
		}),
		RemindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vocabot_reminders_total",
			Help: "Reminder firings by outcome (sent, encouraged, disabled, duplicate, send_failed, error)",
		}, []string{"result"}),
		ReconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vocabot_reconcile_users_total",
			Help: "Users processed by reconciliation, by outcome",
		}, []string{"result"}),
		TasksDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vocabot_tasks_dropped_total",
			Help: "Trigger firings not executed, by reason",
		}, []string{"reason"}),
		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vocabot_task_duration_seconds",
			Help:    "Execution time of trigger firings",
			Buckets: prometheus.DefBuckets,
		}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vocabot_messages_sent_total",
			Help: "Outbound chat messages by result",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.EventsPublished, m.EventsDispatched, m.HandlerFailures, m.EventsDropped, m.QueueDepth,
		m.ReminderJobs, m.RemindersSent, m.ReconcileRuns,
		m.TasksDropped, m.TaskDuration, m.MessagesSent,
	)
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Published(kind string) {
	if m != nil {
		m.EventsPublished.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Dispatched(kind string) {
	if m != nil {
		m.EventsDispatched.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) HandlerFailed(kind string) {
	if m != nil {
		m.HandlerFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Dropped() {
	if m != nil {
		m.EventsDropped.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

func (m *Metrics) SetReminderJobs(n int) {
	if m != nil {
		m.ReminderJobs.Set(float64(n))
	}
}

func (m *Metrics) Reminder(result string) {
	if m != nil {
		m.RemindersSent.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Reconciled(result string) {
	if m != nil {
		m.ReconcileRuns.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) TaskDropped(reason string) {
	if m != nil {
		m.TasksDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ObserveTask(seconds float64) {
	if m != nil {
		m.TaskDuration.Observe(seconds)
	}
}

func (m *Metrics) Message(result string) {
	if m != nil {
		m.MessagesSent.WithLabelValues(result).Inc()
	}
}
