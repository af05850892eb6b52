// Package metrics exposes prometheus counters for chart persistence and
// interaction outcomes.
package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orgterm"

type metrics struct {
	persistTotal   *prometheus.CounterVec
	evictionsTotal prometheus.Counter
	syncTotal      *prometheus.CounterVec
	mutationsTotal *prometheus.CounterVec
	dragTotal      *prometheus.CounterVec
	chartNodes     prometheus.Gauge
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		persistTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_total",
			Help:      "Hierarchy writes by store and result.",
		}, []string{"store", "result"}),
		evictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Times auxiliary cache data was evicted to make room for the hierarchy.",
		}),
		syncTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_sync_total",
			Help:      "Background remote sync passes by outcome.",
		}, []string{"outcome"}),
		mutationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Structural chart mutations by kind and result.",
		}, []string{"kind", "result"}),
		dragTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drag_sessions_total",
			Help:      "Finished drag sessions by how they ended.",
		}, []string{"end"}),
		chartNodes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chart_nodes",
			Help:      "Employees currently placed on the chart.",
		}),
	}
})

func get() *metrics {
	return metricsSingleton()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Persist counts a write of the hierarchy to store ("cache" or "remote").
func Persist(store string, err error) {
	get().persistTotal.WithLabelValues(store, result(err)).Inc()
}

func Eviction() {
	get().evictionsTotal.Inc()
}

// Sync counts a remote sync pass; outcome is pulled, pushed, noop or error.
func Sync(outcome string) {
	get().syncTotal.WithLabelValues(outcome).Inc()
}

// Mutation counts a structural change attempt of the given kind.
func Mutation(kind string, err error) {
	get().mutationsTotal.WithLabelValues(kind, result(err)).Inc()
}

// DragEnded counts a drag session by how it ended (committed, rejected,
// dropped, or the abort cause).
func DragEnded(end string) {
	get().dragTotal.WithLabelValues(end).Inc()
}

func ChartNodes(n int) {
	get().chartNodes.Set(float64(n))
}

// Serve exposes /metrics on addr until the returned stop func is called.
// The bound address is returned so ":0" can be used.
func Serve(addr string) (string, func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, errors.Wrapf(err, "listen on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = srv.Serve(ln)
	}()
	return ln.Addr().String(), srv.Shutdown, nil
}
