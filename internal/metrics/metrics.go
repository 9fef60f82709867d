// Package metrics exposes Prometheus instrumentation on a dedicated
// listener: request counters and latency per route, plus catalog and
// storage gauges refreshed by a background updater.
package metrics

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apkhub/apkhub-server/pkg/catalog"
	"github.com/apkhub/apkhub-server/pkg/storage"
)

// Metrics holds the registry and the instruments registered on it.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	apps         prometheus.Gauge
	versions     prometheus.Gauge
	storageBytes prometheus.Gauge
}

// New creates a registry with the standard process collectors plus the
// server's own instruments.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apkhub_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apkhub_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apps: factory.NewGauge(prometheus.GaugeOpts{
			Name: "apkhub_catalog_apps",
			Help: "Number of apps in the catalog.",
		}),
		versions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "apkhub_catalog_versions",
			Help: "Number of versions across all apps.",
		}),
		storageBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "apkhub_storage_bytes",
			Help: "Total bytes under the artifact storage root.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records a counter and latency sample per request, labeled by
// the chi route pattern so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// StartUpdater refreshes the catalog and storage gauges until ctx is done.
func (m *Metrics) StartUpdater(ctx context.Context, db *catalog.Store, store *storage.Store, interval time.Duration, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.update(ctx, db, store, log)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.update(ctx, db, store, log)
			}
		}
	}()
}

func (m *Metrics) update(ctx context.Context, db *catalog.Store, store *storage.Store, log *slog.Logger) {
	if n, err := db.CountApps(ctx); err == nil {
		m.apps.Set(float64(n))
	} else {
		log.Warn("failed to count apps for metrics", "error", err)
	}

	if n, err := db.CountVersions(ctx); err == nil {
		m.versions.Set(float64(n))
	} else {
		log.Warn("failed to count versions for metrics", "error", err)
	}

	if size, err := treeSize(store.Root()); err == nil {
		m.storageBytes.Set(float64(size))
	} else {
		log.Warn("failed to measure storage size", "error", err)
	}
}

func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
