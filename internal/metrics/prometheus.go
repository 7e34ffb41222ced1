// Package metrics instruments the nft session with Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Command results used as the "result" label.
const (
	ResultOK            = "ok"
	ResultAlreadyExists = "already_exists"
	ResultNotFound      = "not_found"
	ResultFailed        = "failed"
	ResultTimeout       = "timeout"
	ResultDead          = "session_dead"
)

// Registry holds all session metrics.
type Registry struct {
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	Restarts        prometheus.Counter
	Timeouts        prometheus.Counter
	SessionUp       prometheus.Gauge
	JumpCleanups    prometheus.Counter

	gatherer prometheus.Gatherer
}

// Get returns the global metrics registry, creating it if necessary.
// Collectors are registered with the default Prometheus registerer.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return registry
}

// NewIsolated returns a registry backed by its own prometheus.Registry.
// Tests use it to read counters without cross-talk.
func NewIsolated() *Registry {
	reg := prometheus.NewRegistry()
	return newRegistry(reg, reg)
}

func newRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Registry {
	factory := promauto.With(reg)
	r := &Registry{gatherer: g}

	r.Commands = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "nftctl_commands_total",
		Help: "Commands executed on the nft session, by verb and result",
	}, []string{"verb", "result"})

	r.CommandDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nftctl_command_duration_seconds",
		Help:    "Time from writing a command to reading the next prompt",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 5, 15},
	}, []string{"verb"})

	r.Restarts = factory.NewCounter(prometheus.CounterOpts{
		Name: "nftctl_session_restarts_total",
		Help: "Times the nft subprocess was restarted",
	})

	r.Timeouts = factory.NewCounter(prometheus.CounterOpts{
		Name: "nftctl_session_timeouts_total",
		Help: "Exchanges abandoned because the nft subprocess stopped answering",
	})

	r.SessionUp = factory.NewGauge(prometheus.GaugeOpts{
		Name: "nftctl_session_up",
		Help: "1 while the nft subprocess is running and ready",
	})

	r.JumpCleanups = factory.NewCounter(prometheus.CounterOpts{
		Name: "nftctl_jump_cleanups_total",
		Help: "Jump or goto rules deleted ahead of a chain deletion",
	})

	return r
}

// RecordCommand records one completed or failed exchange.
func (r *Registry) RecordCommand(verb, result string, d time.Duration) {
	if verb == "" {
		verb = "unknown"
	}
	r.Commands.WithLabelValues(verb, result).Inc()
	r.CommandDuration.WithLabelValues(verb).Observe(d.Seconds())
}

// SetSessionUp flips the session gauge.
func (r *Registry) SetSessionUp(up bool) {
	if up {
		r.SessionUp.Set(1)
	} else {
		r.SessionUp.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
