package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exit reasons recorded by WorkerExits.
const (
	ExitIntentional = "intentional"
	ExitCrash       = "crash"
)

// Supervisor holds the primary's metrics.
type Supervisor struct {
	WorkersLive     prometheus.Gauge
	WorkersStarted  prometheus.Counter
	WorkerRestarts  prometheus.Counter
	WorkerExits     *prometheus.CounterVec
	RunOnceRequests *prometheus.CounterVec
	RunOncePending  prometheus.Gauge
	RelayedLogs     *prometheus.CounterVec
	PrivilegeSwitch prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewSupervisor creates the supervisor metrics and registers them, together
// with the Go and process collectors, in a fresh registry.
func NewSupervisor() *Supervisor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newSupervisor(reg, reg)
}

func newSupervisor(reg prometheus.Registerer, g prometheus.Gatherer) *Supervisor {
	m := &Supervisor{
		WorkersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bedrock_workers_live",
			Help: "Number of live worker processes",
		}),
		WorkersStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bedrock_workers_started_total",
			Help: "Total number of worker processes started",
		}),
		WorkerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bedrock_worker_restarts_total",
			Help: "Total number of crashed workers replaced",
		}),
		WorkerExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bedrock_worker_exits_total",
			Help: "Total number of worker exits by reason",
		}, []string{"reason"}),
		RunOnceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bedrock_runonce_requests_total",
			Help: "Total number of run-once requests by outcome",
		}, []string{"outcome"}),
		RunOncePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bedrock_runonce_pending",
			Help: "Number of run-once ids not yet completed",
		}),
		RelayedLogs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bedrock_relayed_logs_total",
			Help: "Total number of worker log records relayed by level",
		}, []string{"level"}),
		PrivilegeSwitch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bedrock_process_user_switched",
			Help: "Whether the primary switched its process user (1 = switched)",
		}),
		gatherer: g,
	}

	reg.MustRegister(
		m.WorkersLive,
		m.WorkersStarted,
		m.WorkerRestarts,
		m.WorkerExits,
		m.RunOnceRequests,
		m.RunOncePending,
		m.RelayedLogs,
		m.PrivilegeSwitch,
	)
	return m
}

// Handler returns the Prometheus HTTP handler for these metrics.
func (m *Supervisor) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
