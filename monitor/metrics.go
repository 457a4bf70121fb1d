// Package monitor exposes operational state: Prometheus metrics, a
// health probe and the stream list.
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumastream/luma/stream"
)

// Metrics registers collectors over the live registry plus counters the
// pipeline components bump directly.  It satisfies hls.Observer.
type Metrics struct {
	registry *prometheus.Registry

	segmentsWritten prometheus.Counter
	segmentsPruned  prometheus.Counter
}

func NewMetrics(reg *stream.Registry) *Metrics {
	registry := prometheus.NewRegistry()
	stats := reg.Stats()

	activeStreams := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "luma_active_streams",
		Help: "Number of registered stream hubs",
	}, func() float64 { return float64(len(reg.Names())) })
	activeSubscribers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "luma_active_subscribers",
		Help: "Number of subscriber channels across all hubs",
	}, func() float64 { return float64(reg.SubscriberTotal()) })
	packetsPublished := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "luma_packets_published_total",
		Help: "Packets accepted from publishers",
	}, func() float64 { return float64(stats.PacketsPublished.Load()) })
	packetsDropped := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "luma_packets_dropped_total",
		Help: "Packets dropped on slow subscriber channels",
	}, func() float64 { return float64(stats.PacketsDropped.Load()) })

	segmentsWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "luma_hls_segments_written_total",
		Help: "HLS segments written to disk",
	})
	segmentsPruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "luma_hls_segments_pruned_total",
		Help: "HLS segment files deleted by window pruning",
	})

	registry.MustRegister(
		activeStreams,
		activeSubscribers,
		packetsPublished,
		packetsDropped,
		segmentsWritten,
		segmentsPruned,
	)

	return &Metrics{
		registry:        registry,
		segmentsWritten: segmentsWritten,
		segmentsPruned:  segmentsPruned,
	}
}

// SegmentWritten implements hls.Observer.
func (m *Metrics) SegmentWritten() {
	m.segmentsWritten.Inc()
}

// SegmentPruned implements hls.Observer.
func (m *Metrics) SegmentPruned() {
	m.segmentsPruned.Inc()
}

// Handler serves the metrics in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
