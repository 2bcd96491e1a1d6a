// Package metrics exports plugin loading timings to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reporter implements loader.TimingReporter.
type Reporter struct {
	pluginDuration *prometheus.HistogramVec
	passes         prometheus.Counter
	passDuration   prometheus.Observer
	lastPass       prometheus.Gauge
	plugins        prometheus.Gauge
}

var (
	defaultOnce sync.Once
	defaultInst *Reporter
)

// Default returns the reporter registered with the default Prometheus
// registry.
func Default() *Reporter {
	defaultOnce.Do(func() {
		defaultInst = New(prometheus.DefaultRegisterer)
	})
	return defaultInst
}

// New registers the plugin metrics with reg.
func New(reg prometheus.Registerer) *Reporter {
	factory := promauto.With(reg)
	return &Reporter{
		pluginDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "serverboot",
			Subsystem: "plugins",
			Name:      "init_duration_seconds",
			Help:      "Time spent constructing and initializing each plugin",
			Buckets:   prometheus.DefBuckets,
		}, []string{"plugin"}),
		passes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "serverboot",
			Subsystem: "plugins",
			Name:      "passes_total",
			Help:      "Completed plugin loading passes",
		}),
		passDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "serverboot",
			Subsystem: "plugins",
			Name:      "pass_duration_seconds",
			Help:      "Duration of plugin loading passes",
			Buckets:   prometheus.DefBuckets,
		}),
		lastPass: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "serverboot",
			Subsystem: "plugins",
			Name:      "last_pass_plugins",
			Help:      "Plugins initialized by the latest loading pass",
		}),
		plugins: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "serverboot",
			Subsystem: "plugins",
			Name:      "initialized",
			Help:      "Plugins initialized since startup",
		}),
	}
}

// PluginInitialized records one plugin's total load time.
func (r *Reporter) PluginInitialized(name string, d time.Duration) {
	if r == nil {
		return
	}
	r.pluginDuration.WithLabelValues(name).Observe(d.Seconds())
	r.plugins.Inc()
}

// PassCompleted records a finished loading pass.
func (r *Reporter) PassCompleted(_ string, plugins int, d time.Duration) {
	if r == nil {
		return
	}
	r.passes.Inc()
	r.passDuration.Observe(d.Seconds())
	r.lastPass.Set(float64(plugins))
}
