// Package metrics exposes Prometheus counters and gauges for the xsk socket family.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics holds every collector registered for the xsk family.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Ring metrics
	ringDepth       *prometheus.GaugeVec
	ringInvalid     *prometheus.CounterVec
	ringFullEvents  *prometheus.CounterVec
	ringEmptyEvents *prometheus.CounterVec

	// Socket data-path metrics
	rxPackets   *prometheus.CounterVec
	rxBytes     *prometheus.CounterVec
	rxDropped   *prometheus.CounterVec
	txPackets   *prometheus.CounterVec
	txBytes     *prometheus.CounterVec
	txAgain     *prometheus.CounterVec
	txErrors    *prometheus.CounterVec

	// Umem metrics
	umemFramesFree *prometheus.GaugeVec
	umemRefcount   *prometheus.GaugeVec

	// Socket lifecycle metrics
	socketsBound *prometheus.GaugeVec
	rebinds      *prometheus.CounterVec

	customMetrics map[string]prometheus.Collector
	mutex         sync.RWMutex
}

// MetricsConfig configures the namespace and collection behavior of a PrometheusMetrics.
type MetricsConfig struct {
	Namespace            string
	Subsystem            string
	CollectionInterval   time.Duration
	ExposeGoMetrics      bool
	ExposeProcessMetrics bool
}

// MetricsCollector owns a PrometheusMetrics and the HTTP server exposing it.
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	config     MetricsConfig
	server     *http.Server
	enabled    bool
	mutex      sync.RWMutex
}

// NewPrometheusMetrics builds and registers the xsk metric set.
func NewPrometheusMetrics(config MetricsConfig) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	if config.Namespace == "" {
		config.Namespace = "xsk"
	}

	pm := &PrometheusMetrics{
		registry:      registry,
		customMetrics: make(map[string]prometheus.Collector),
	}

	pm.initializeMetrics(config)
	pm.registerMetrics()

	return pm
}

func (pm *PrometheusMetrics) initializeMetrics(config MetricsConfig) {
	pm.ringDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "ring",
			Name:      "depth",
			Help:      "Outstanding (producer - consumer) slots on a ring",
		},
		[]string{"ring", "ifindex", "queue_id"},
	)

	pm.ringInvalid = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "ring",
			Name:      "invalid_descs_total",
			Help:      "Descriptors rejected by ring validation",
		},
		[]string{"ring", "ifindex", "queue_id"},
	)

	pm.ringFullEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "ring",
			Name:      "full_events_total",
			Help:      "Times a producer observed a full ring",
		},
		[]string{"ring", "ifindex", "queue_id"},
	)

	pm.ringEmptyEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "ring",
			Name:      "empty_events_total",
			Help:      "Times a consumer observed an empty ring",
		},
		[]string{"ring", "ifindex", "queue_id"},
	)

	pm.rxPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "rx",
			Name:      "packets_total",
			Help:      "Frames delivered to the rx ring",
		},
		[]string{"ifindex", "queue_id"},
	)

	pm.rxBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "rx",
			Name:      "bytes_total",
			Help:      "Bytes copied into rx frames",
		},
		[]string{"ifindex", "queue_id"},
	)

	pm.rxDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "rx",
			Name:      "dropped_total",
			Help:      "Buffers dropped on the rx path",
		},
		[]string{"ifindex", "queue_id", "reason"},
	)

	pm.txPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "tx",
			Name:      "packets_total",
			Help:      "Frames submitted to the device transmit path",
		},
		[]string{"ifindex", "queue_id"},
	)

	pm.txBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "tx",
			Name:      "bytes_total",
			Help:      "Bytes submitted on the tx path",
		},
		[]string{"ifindex", "queue_id"},
	)

	pm.txAgain = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "tx",
			Name:      "again_total",
			Help:      "sendmsg batches exited early on backpressure",
		},
		[]string{"ifindex", "queue_id"},
	)

	pm.txErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "tx",
			Name:      "errors_total",
			Help:      "sendmsg failures by kind",
		},
		[]string{"ifindex", "queue_id", "kind"},
	)

	pm.umemFramesFree = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "umem",
			Name:      "frames_free",
			Help:      "Frames currently user-owned free",
		},
		[]string{"umem"},
	)

	pm.umemRefcount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "umem",
			Name:      "refcount",
			Help:      "Number of sockets referencing this umem",
		},
		[]string{"umem"},
	)

	pm.socketsBound = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "socket",
			Name:      "bound",
			Help:      "Sockets currently bound, by device and queue",
		},
		[]string{"ifindex", "queue_id"},
	)

	pm.rebinds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "socket",
			Name:      "rebinds_total",
			Help:      "Successful rebind transitions",
		},
		[]string{"ifindex", "queue_id"},
	)
}

func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.ringDepth,
		pm.ringInvalid,
		pm.ringFullEvents,
		pm.ringEmptyEvents,
		pm.rxPackets,
		pm.rxBytes,
		pm.rxDropped,
		pm.txPackets,
		pm.txBytes,
		pm.txAgain,
		pm.txErrors,
		pm.umemFramesFree,
		pm.umemRefcount,
		pm.socketsBound,
		pm.rebinds,
	)
}

// RecordRxPacket records a successful rx delivery.
func (pm *PrometheusMetrics) RecordRxPacket(ifindex, queueID string, bytes int) {
	pm.rxPackets.WithLabelValues(ifindex, queueID).Inc()
	pm.rxBytes.WithLabelValues(ifindex, queueID).Add(float64(bytes))
}

// RecordRxDrop records an rx-path drop and its reason.
func (pm *PrometheusMetrics) RecordRxDrop(ifindex, queueID, reason string) {
	pm.rxDropped.WithLabelValues(ifindex, queueID, reason).Inc()
}

// RecordTxPacket records a frame handed to the device transmit path.
func (pm *PrometheusMetrics) RecordTxPacket(ifindex, queueID string, bytes int) {
	pm.txPackets.WithLabelValues(ifindex, queueID).Inc()
	pm.txBytes.WithLabelValues(ifindex, queueID).Add(float64(bytes))
}

// RecordTxAgain records a sendmsg batch that exited early on backpressure.
func (pm *PrometheusMetrics) RecordTxAgain(ifindex, queueID string) {
	pm.txAgain.WithLabelValues(ifindex, queueID).Inc()
}

// RecordTxError records a sendmsg failure by kind.
func (pm *PrometheusMetrics) RecordTxError(ifindex, queueID, kind string) {
	pm.txErrors.WithLabelValues(ifindex, queueID, kind).Inc()
}

// SetRingDepth reports the current producer-consumer distance of a ring.
func (pm *PrometheusMetrics) SetRingDepth(ring, ifindex, queueID string, depth int) {
	pm.ringDepth.WithLabelValues(ring, ifindex, queueID).Set(float64(depth))
}

// RecordRingInvalid records a descriptor-validation rejection.
func (pm *PrometheusMetrics) RecordRingInvalid(ring, ifindex, queueID string) {
	pm.ringInvalid.WithLabelValues(ring, ifindex, queueID).Inc()
}

// RecordRingFull records a producer observing a full ring.
func (pm *PrometheusMetrics) RecordRingFull(ring, ifindex, queueID string) {
	pm.ringFullEvents.WithLabelValues(ring, ifindex, queueID).Inc()
}

// RecordRingEmpty records a consumer observing an empty ring.
func (pm *PrometheusMetrics) RecordRingEmpty(ring, ifindex, queueID string) {
	pm.ringEmptyEvents.WithLabelValues(ring, ifindex, queueID).Inc()
}

// SetUmemFramesFree reports the current free-frame count of a umem.
func (pm *PrometheusMetrics) SetUmemFramesFree(umem string, count int) {
	pm.umemFramesFree.WithLabelValues(umem).Set(float64(count))
}

// SetUmemRefcount reports the current socket refcount of a umem.
func (pm *PrometheusMetrics) SetUmemRefcount(umem string, count int) {
	pm.umemRefcount.WithLabelValues(umem).Set(float64(count))
}

// SetSocketBound reports whether a (device, queue) pair currently has a bound socket.
func (pm *PrometheusMetrics) SetSocketBound(ifindex, queueID string, bound bool) {
	v := 0.0
	if bound {
		v = 1.0
	}
	pm.socketsBound.WithLabelValues(ifindex, queueID).Set(v)
}

// RecordRebind records a successful rebind transition.
func (pm *PrometheusMetrics) RecordRebind(ifindex, queueID string) {
	pm.rebinds.WithLabelValues(ifindex, queueID).Inc()
}

// AddCustomMetric registers an additional collector under the given name.
func (pm *PrometheusMetrics) AddCustomMetric(name string, collector prometheus.Collector) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if _, exists := pm.customMetrics[name]; exists {
		return
	}
	pm.customMetrics[name] = collector
	pm.registry.MustRegister(collector)
}

// GetRegistry returns the underlying Prometheus registry.
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// NewMetricsCollector creates a collector bound to a fresh metric set.
func NewMetricsCollector(config MetricsConfig) *MetricsCollector {
	mc := &MetricsCollector{
		prometheus: NewPrometheusMetrics(config),
		config:     config,
		enabled:    true,
	}

	if config.ExposeGoMetrics {
		mc.prometheus.registry.MustRegister(prometheus.NewGoCollector())
	}
	if config.ExposeProcessMetrics {
		mc.prometheus.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}

	return mc
}

// StartServer serves /metrics and /health on addr until it errors.
func (mc *MetricsCollector) StartServer(addr string) error {
	handler := promhttp.HandlerFor(mc.prometheus.registry, promhttp.HandlerOpts{})

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mc.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return mc.server.ListenAndServe()
}

// StopServer gracefully shuts down the metrics HTTP server.
func (mc *MetricsCollector) StopServer(ctx context.Context) error {
	if mc.server != nil {
		return mc.server.Shutdown(ctx)
	}
	return nil
}

// GetPrometheus returns the underlying metric set.
func (mc *MetricsCollector) GetPrometheus() *PrometheusMetrics {
	return mc.prometheus
}

// Enable sets the collector's enabled flag. The Record*/Set* methods of
// PrometheusMetrics do not consult this flag.
func (mc *MetricsCollector) Enable() {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	mc.enabled = true
}

// Disable clears the collector's enabled flag without tearing down the
// registry. Metrics recorded through PrometheusMetrics keep updating
// while it is cleared.
func (mc *MetricsCollector) Disable() {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	mc.enabled = false
}

// DefaultMetricsConfig returns the namespace and exposure defaults used by cmd/xskdemo.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:            "xsk",
		CollectionInterval:   15 * time.Second,
		ExposeGoMetrics:      true,
		ExposeProcessMetrics: true,
	}
}
