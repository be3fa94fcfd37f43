// Package metrics records audiograph activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shaban/audiograph/graph"
)

// Recorder is everything the audiograph components report. It satisfies
// param.Recorder, graph.Recorder, soft.Recorder, devices.Recorder and
// session.MetricsHook.
type Recorder interface {
	RecordParameterWrite(node, path string)
	RecordGraphOp(op string, err error)
	RecordOutputReconnect(result string)
	RecordRender(frames int, took time.Duration)
	RecordDeviceSelection(dir string, err error)
	OnEngineStart(took time.Duration, err error)
	OnEngineStop(uptime time.Duration)
	OnConfigure(err error)
}

// Collector is the Prometheus Recorder. Each Collector owns its registry.
type Collector struct {
	registry *prometheus.Registry

	parameterWrites  *prometheus.CounterVec
	graphOps         *prometheus.CounterVec
	outputReconnects *prometheus.CounterVec
	deviceSelections *prometheus.CounterVec

	renderSlices   prometheus.Counter
	renderFrames   prometheus.Counter
	renderDuration prometheus.Histogram

	engineStarts        *prometheus.CounterVec
	engineStartDuration prometheus.Histogram
	engineUptime        prometheus.Gauge
	configures          *prometheus.CounterVec

	logger *zap.Logger
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a collector with metrics under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.parameterWrites = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parameter_writes_total",
			Help:      "Parameter writes by node and write path",
		},
		[]string{"node", "path"},
	)

	c.graphOps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_operations_total",
			Help:      "Graph mutations by operation and status",
		},
		[]string{"op", "status"},
	)

	c.outputReconnects = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_reconnects_total",
			Help:      "Output node changes by result",
		},
		[]string{"result"},
	)

	c.deviceSelections = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_selections_total",
			Help:      "Device selections by direction and status",
		},
		[]string{"direction", "status"},
	)

	c.renderSlices = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "render_slices_total",
		Help:      "Rendered slices",
	})

	c.renderFrames = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "render_frames_total",
		Help:      "Rendered frames",
	})

	c.renderDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "render_duration_seconds",
		Help:      "Time spent rendering one slice",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
	})

	c.engineStarts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_starts_total",
			Help:      "Engine starts by status",
		},
		[]string{"status"},
	)

	c.engineStartDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "engine_start_duration_seconds",
		Help:      "Engine start latency",
		Buckets:   prometheus.DefBuckets,
	})

	c.engineUptime = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "engine_last_uptime_seconds",
		Help:      "Uptime of the most recently stopped engine",
	})

	c.configures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_configures_total",
			Help:      "Session configure calls by status",
		},
		[]string{"status"},
	)

	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the collector's metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Collector) RecordParameterWrite(node, path string) {
	c.parameterWrites.WithLabelValues(node, path).Inc()
}

func (c *Collector) RecordGraphOp(op string, err error) {
	c.graphOps.WithLabelValues(op, status(err)).Inc()
}

func (c *Collector) RecordOutputReconnect(result string) {
	c.outputReconnects.WithLabelValues(result).Inc()
	if result == graph.ReconnectPartial {
		c.logger.Warn("output reconnect left partial state")
	}
}

func (c *Collector) RecordRender(frames int, took time.Duration) {
	c.renderSlices.Inc()
	c.renderFrames.Add(float64(frames))
	c.renderDuration.Observe(took.Seconds())
}

func (c *Collector) RecordDeviceSelection(dir string, err error) {
	c.deviceSelections.WithLabelValues(dir, status(err)).Inc()
}

func (c *Collector) OnEngineStart(took time.Duration, err error) {
	c.engineStarts.WithLabelValues(status(err)).Inc()
	if err == nil {
		c.engineStartDuration.Observe(took.Seconds())
	}
}

func (c *Collector) OnEngineStop(uptime time.Duration) {
	c.engineUptime.Set(uptime.Seconds())
}

func (c *Collector) OnConfigure(err error) {
	c.configures.WithLabelValues(status(err)).Inc()
}
