// Package metrics exposes Prometheus collectors for the node server and
// the client's striping engine, following the teacher's pattern of one
// promauto-built collector struct per subsystem with nil-receiver-safe
// record methods, so call sites never need to check whether metrics are
// enabled.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Node holds the node server's Prometheus collectors.
type Node struct {
	requests       *prometheus.CounterVec
	requestErrors  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	bytesStored    prometheus.Counter
	bytesServed    prometheus.Counter
}

// NewNode registers the node server's collectors with reg. Pass nil to use
// prometheus.DefaultRegisterer.
func NewNode(reg prometheus.Registerer) *Node {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Node{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bbfs_node_requests_total",
			Help: "Total requests handled by the node server, by type.",
		}, []string{"type"}),
		requestErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bbfs_node_request_errors_total",
			Help: "Total requests that failed, by type.",
		}, []string{"type"}),
		requestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bbfs_node_request_duration_seconds",
			Help:    "Request handling latency, by type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		bytesStored: f.NewCounter(prometheus.CounterOpts{
			Name: "bbfs_node_bytes_stored_total",
			Help: "Total payload bytes written to fragment files.",
		}),
		bytesServed: f.NewCounter(prometheus.CounterOpts{
			Name: "bbfs_node_bytes_served_total",
			Help: "Total payload bytes read from fragment files.",
		}),
	}
}

// RecordRequest records one handled request of the given type.
func (n *Node) RecordRequest(reqType string, ok bool, seconds float64) {
	if n == nil {
		return
	}
	n.requests.WithLabelValues(reqType).Inc()
	n.requestLatency.WithLabelValues(reqType).Observe(seconds)
	if !ok {
		n.requestErrors.WithLabelValues(reqType).Inc()
	}
}

// RecordBytesStored adds n bytes to the stored-bytes counter.
func (nd *Node) RecordBytesStored(n int) {
	if nd == nil {
		return
	}
	nd.bytesStored.Add(float64(n))
}

// RecordBytesServed adds n bytes to the served-bytes counter.
func (nd *Node) RecordBytesServed(n int) {
	if nd == nil {
		return
	}
	nd.bytesServed.Add(float64(n))
}

// Engine holds the client striping engine's Prometheus collectors.
type Engine struct {
	reconnects   *prometheus.CounterVec
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	windowHits   prometheus.Counter
	windowMisses prometheus.Counter
	flushes      prometheus.Counter
	flushErrors  prometheus.Counter
	reads        *prometheus.HistogramVec
	reconstructs prometheus.Counter
}

// NewEngine registers the engine's collectors with reg. Pass nil to use
// prometheus.DefaultRegisterer.
func NewEngine(reg prometheus.Registerer) *Engine {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Engine{
		reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bbfs_engine_reconnects_total",
			Help: "Total reconnect attempts to a storage node, by node index.",
		}, []string{"node"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "bbfs_engine_read_cache_hits_total",
			Help: "Total small-file read cache hits.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "bbfs_engine_read_cache_misses_total",
			Help: "Total small-file read cache misses.",
		}),
		windowHits: f.NewCounter(prometheus.CounterOpts{
			Name: "bbfs_engine_read_window_hits_total",
			Help: "Total large-file read-ahead window hits.",
		}),
		windowMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "bbfs_engine_read_window_misses_total",
			Help: "Total large-file read-ahead window misses.",
		}),
		flushes: f.NewCounter(prometheus.CounterOpts{
			Name: "bbfs_engine_flushes_total",
			Help: "Total write buffer flushes.",
		}),
		flushErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "bbfs_engine_flush_errors_total",
			Help: "Total write buffer flushes that failed.",
		}),
		reads: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bbfs_engine_read_duration_seconds",
			Help:    "End-to-end read() latency, by source.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		reconstructs: f.NewCounter(prometheus.CounterOpts{
			Name: "bbfs_engine_reconstructions_total",
			Help: "Total single-fragment XOR reconstructions on a read.",
		}),
	}
}

// RecordReconstruction records one single-fragment XOR reconstruction.
func (e *Engine) RecordReconstruction() {
	if e == nil {
		return
	}
	e.reconstructs.Inc()
}

// RecordReconnect records a reconnect attempt for the given node index.
func (e *Engine) RecordReconnect(nodeIndex int) {
	if e == nil {
		return
	}
	e.reconnects.WithLabelValues(strconv.Itoa(nodeIndex)).Inc()
}

// RecordCache records a small-file cache hit or miss.
func (e *Engine) RecordCache(hit bool) {
	if e == nil {
		return
	}
	if hit {
		e.cacheHits.Inc()
	} else {
		e.cacheMisses.Inc()
	}
}

// RecordWindow records a read-ahead window hit or miss.
func (e *Engine) RecordWindow(hit bool) {
	if e == nil {
		return
	}
	if hit {
		e.windowHits.Inc()
	} else {
		e.windowMisses.Inc()
	}
}

// RecordFlush records a write buffer flush outcome.
func (e *Engine) RecordFlush(ok bool) {
	if e == nil {
		return
	}
	e.flushes.Inc()
	if !ok {
		e.flushErrors.Inc()
	}
}

// RecordRead records a read's latency, tagged by its source (cache,
// window, or network).
func (e *Engine) RecordRead(source string, seconds float64) {
	if e == nil {
		return
	}
	e.reads.WithLabelValues(source).Observe(seconds)
}

// Handler returns an http.Handler serving the Prometheus exposition format
// for the default registry, where NewNode(nil) and NewEngine(nil) register
// their collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}

