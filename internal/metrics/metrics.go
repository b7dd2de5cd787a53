package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/nsmux/internal/observe"
)

var (
	registerOnce sync.Once

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nsmux",
			Name:      "sessions_active",
			Help:      "Sessions currently running.",
		},
	)
	sessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nsmux",
			Name:      "sessions_total",
			Help:      "Sessions opened since start.",
		},
	)
	workersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nsmux",
			Name:      "workers_active",
			Help:      "Namespace workers currently running across all sessions.",
		},
	)
	workersSpawned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nsmux",
			Name:      "workers_spawned_total",
			Help:      "Namespace workers started.",
		},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsmux",
			Name:      "frames_total",
			Help:      "Frames routed in or written out.",
		},
		[]string{"direction"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsmux",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded before reaching a worker or the client.",
		},
		[]string{"reason"},
	)
	workerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsmux",
			Name:      "worker_failures_total",
			Help:      "Handlers that returned an error or panicked.",
		},
		[]string{"namespace"},
	)
)

// RegisterMetrics registers every collector with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionsActive,
			sessionsTotal,
			workersActive,
			workersSpawned,
			frames,
			framesDropped,
			workerFailures,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

// Sink translates session events into metric updates.
type Sink struct{}

var _ observe.Sink = Sink{}

// NewSink registers the collectors and returns a Sink.
func NewSink() Sink {
	RegisterMetrics()
	return Sink{}
}

// Record implements observe.Sink.
func (Sink) Record(ev observe.Event) {
	switch ev.Kind {
	case observe.KindSessionOpened:
		sessionsActive.Inc()
		sessionsTotal.Inc()
	case observe.KindSessionClosed:
		sessionsActive.Dec()
	case observe.KindWorkerStarted:
		workersActive.Inc()
		workersSpawned.Inc()
	case observe.KindWorkerFinished:
		workersActive.Dec()
	case observe.KindWorkerFailed:
		workersActive.Dec()
		workerFailures.WithLabelValues(ev.Namespace).Inc()
	case observe.KindFrameIn:
		frames.WithLabelValues("in").Inc()
	case observe.KindFrameOut:
		frames.WithLabelValues("out").Inc()
	case observe.KindProtocolDrop:
		framesDropped.WithLabelValues("protocol").Inc()
	case observe.KindRoutingDrop:
		framesDropped.WithLabelValues("routing").Inc()
	case observe.KindFunnelDrop:
		framesDropped.WithLabelValues("funnel").Inc()
	}
}
