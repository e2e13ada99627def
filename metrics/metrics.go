// Package metrics exposes runtime telemetry counters to Prometheus. The
// collector reads rt.Stats on scrape; nothing is recorded on hot paths.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swordworks/dsv4l2/rt"
)

// Collector adapts a runtime's statistics to the Prometheus scrape model.
type Collector struct {
	runtime *rt.Runtime

	emitted      *prometheus.Desc
	dropped      *prometheus.Desc
	flushed      *prometheus.Desc
	occupancy    *prometheus.Desc
	maxOccupancy *prometheus.Desc
	capacity     *prometheus.Desc
}

// NewCollector builds a collector over the given runtime.
func NewCollector(runtime *rt.Runtime) *Collector {
	return &Collector{
		runtime: runtime,
		emitted: prometheus.NewDesc("dsv4l2_events_emitted_total",
			"Events emitted into the ring buffer.", nil, nil),
		dropped: prometheus.NewDesc("dsv4l2_events_dropped_total",
			"Events overwritten under ring pressure.", nil, nil),
		flushed: prometheus.NewDesc("dsv4l2_events_flushed_total",
			"Events delivered to sinks.", nil, nil),
		occupancy: prometheus.NewDesc("dsv4l2_ring_occupancy",
			"Events currently buffered.", nil, nil),
		maxOccupancy: prometheus.NewDesc("dsv4l2_ring_occupancy_max",
			"High-water mark of ring occupancy.", nil, nil),
		capacity: prometheus.NewDesc("dsv4l2_ring_capacity",
			"Configured ring capacity.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.emitted
	ch <- c.dropped
	ch <- c.flushed
	ch <- c.occupancy
	ch <- c.maxOccupancy
	ch <- c.capacity
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.runtime.Stats()
	ch <- prometheus.MustNewConstMetric(c.emitted, prometheus.CounterValue, float64(stats.Emitted))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(stats.Dropped))
	ch <- prometheus.MustNewConstMetric(c.flushed, prometheus.CounterValue, float64(stats.Flushed))
	ch <- prometheus.MustNewConstMetric(c.occupancy, prometheus.GaugeValue, float64(stats.Occupancy))
	ch <- prometheus.MustNewConstMetric(c.maxOccupancy, prometheus.GaugeValue, float64(stats.MaxOccupancy))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(stats.Capacity))
}

var _ prometheus.Collector = (*Collector)(nil)

// Handler returns an HTTP handler serving the runtime's metrics on a
// dedicated registry.
func Handler(runtime *rt.Runtime) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(runtime)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
