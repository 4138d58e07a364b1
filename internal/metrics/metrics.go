package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aura"

// Registry groups the HTTP client and event stream collectors.
type Registry struct {
	reg *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpRetries   *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	streamState   *prometheus.GaugeVec
	reconnects    prometheus.Counter
	frames        *prometheus.CounterVec
	subscriptions prometheus.Gauge
	transitions   *prometheus.CounterVec
}

// New builds a Registry with process and Go runtime collectors attached.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}
	r.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "Completed API calls by method and outcome.",
	}, []string{"method", "outcome"})
	r.httpRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "retries_total",
		Help: "Retries scheduled by the HTTP client, by error kind.",
	}, []string{"kind"})
	r.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "attempt_duration_seconds",
		Help:    "Duration of individual HTTP attempts.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
	r.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "cache_lookups_total",
		Help: "GET cache lookups by result.",
	}, []string{"result"})
	r.streamState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "stream", Name: "state",
		Help: "1 for the current event stream connection state, 0 otherwise.",
	}, []string{"state"})
	r.reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "stream", Name: "reconnects_total",
		Help: "Reconnect attempts scheduled by the event stream manager.",
	})
	r.frames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "stream", Name: "events_total",
		Help: "Events received on the stream by type.",
	}, []string{"type"})
	r.subscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "stream", Name: "resources",
		Help: "Resource identifiers currently carried by the stream.",
	})
	r.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "workflow", Name: "transitions_total",
		Help: "Workflow phase transitions applied locally.",
	}, []string{"workflow", "phase"})

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests, r.httpRetries, r.httpDuration, r.cacheLookups,
		r.streamState, r.reconnects, r.frames, r.subscriptions, r.transitions,
	)
	return r
}

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

func (r *Registry) ObserveRequest(method, outcome string) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, outcome).Inc()
}

func (r *Registry) ObserveAttempt(method string, status int, seconds float64) {
	if r == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	r.httpDuration.WithLabelValues(method, label).Observe(seconds)
}

func (r *Registry) ObserveRetry(kind string) {
	if r == nil {
		return
	}
	r.httpRetries.WithLabelValues(kind).Inc()
}

func (r *Registry) ObserveCache(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// SetStreamState marks current as the only active state among all.
func (r *Registry) SetStreamState(current string, all []string) {
	if r == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		r.streamState.WithLabelValues(s).Set(v)
	}
}

func (r *Registry) ObserveReconnect() {
	if r == nil {
		return
	}
	r.reconnects.Inc()
}

func (r *Registry) ObserveEvent(eventType string) {
	if r == nil {
		return
	}
	r.frames.WithLabelValues(eventType).Inc()
}

func (r *Registry) SetResources(n int) {
	if r == nil {
		return
	}
	r.subscriptions.Set(float64(n))
}

func (r *Registry) ObserveTransition(workflow, phase string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(workflow, phase).Inc()
}
