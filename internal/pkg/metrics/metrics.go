package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "basomap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "basomap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "basomap",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Inventory dataset metrics
	RecordsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "basomap",
		Subsystem: "inventory",
		Name:      "records_loaded_total",
		Help:      "Total inventory records loaded into the working set",
	})

	RecordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "basomap",
		Subsystem: "inventory",
		Name:      "records_dropped_total",
		Help:      "Total raw records dropped during normalization",
	})

	ViewportRecomputes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "basomap",
		Subsystem: "inventory",
		Name:      "viewport_recomputes_total",
		Help:      "Total visible-set recomputations",
	})

	RecordsDecimated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "basomap",
		Subsystem: "inventory",
		Name:      "records_decimated_total",
		Help:      "Total records dropped by draw-budget decimation",
	})

	// Report submission metrics
	ReportsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "basomap",
		Subsystem: "reports",
		Name:      "sent_total",
		Help:      "Total report submissions delivered",
	})

	ReportsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "basomap",
		Subsystem: "reports",
		Name:      "queued_total",
		Help:      "Total report submissions persisted to the outbox",
	})

	OutboxFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "basomap",
		Subsystem: "reports",
		Name:      "outbox_flushed_total",
		Help:      "Total outbox entries delivered during flush passes",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "basomap",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "basomap",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basomap",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basomap",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basomap",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool gauges from pgx pool stats.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
