package fleetsim

import (
	"net/http"

	"github.com/OpenTransitTools/fleetsim/foundation/jitter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// simMetrics exposes scheduler and fleet health on a dedicated registry
type simMetrics struct {
	registry       *prometheus.Registry
	jitterMean     prometheus.Gauge
	jitterStdDev   prometheus.Gauge
	jitterMin      prometheus.Gauge
	jitterMax      prometheus.Gauge
	activeVehicles prometheus.Gauge
	updatesTotal   prometheus.Counter
}

// makeSimMetrics builds and registers the fleet gauges
func makeSimMetrics() *simMetrics {
	m := &simMetrics{
		registry: prometheus.NewRegistry(),
		jitterMean: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetsim_jitter_mean_milliseconds",
			Help: "Mean of the rolling window of vehicle update jitter samples.",
		}),
		jitterStdDev: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetsim_jitter_stddev_milliseconds",
			Help: "Standard deviation of the rolling window of vehicle update jitter samples.",
		}),
		jitterMin: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetsim_jitter_min_milliseconds",
			Help: "Minimum of the rolling window of vehicle update jitter samples.",
		}),
		jitterMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetsim_jitter_max_milliseconds",
			Help: "Maximum of the rolling window of vehicle update jitter samples.",
		}),
		activeVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetsim_active_vehicles",
			Help: "Vehicles in the active registry as seen by this instance.",
		}),
		updatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetsim_updates_total",
			Help: "Vehicle state advances performed by this instance.",
		}),
	}
	m.registry.MustRegister(m.jitterMean, m.jitterStdDev, m.jitterMin, m.jitterMax,
		m.activeVehicles, m.updatesTotal)
	return m
}

// setJitter publishes the rolling window statistics
func (m *simMetrics) setJitter(stats jitter.Stats) {
	m.jitterMean.Set(stats.Mean)
	m.jitterStdDev.Set(stats.StdDev)
	m.jitterMin.Set(stats.Min)
	m.jitterMax.Set(stats.Max)
}

// setActiveVehicles publishes the active fleet size
func (m *simMetrics) setActiveVehicles(count int) {
	m.activeVehicles.Set(float64(count))
}

// observeUpdate counts one successful vehicle advance
func (m *simMetrics) observeUpdate() {
	m.updatesTotal.Inc()
}

// handler serves the registry in prometheus exposition format
func (m *simMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
