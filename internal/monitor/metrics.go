package monitor

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector collects business and system metrics
type MetricsCollector struct {
	// notification metrics
	notificationDispatchedTotal *prometheus.CounterVec
	notificationDeliveredTotal  *prometheus.CounterVec
	notificationPushFailedTotal *prometheus.CounterVec

	// websocket metrics
	wsConnectionsActive prometheus.Gauge
	wsMessagesTotal     *prometheus.CounterVec

	// discount metrics
	discountTransitionTotal *prometheus.CounterVec
	discountScanDuration    prometheus.Histogram
	discountScanItemsTotal  *prometheus.CounterVec
	priceRecomputeTotal     *prometheus.CounterVec

	// http metrics
	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// system metrics
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
}

// NewMetricsCollector creates a metrics collector
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{}
	mc.initMetrics()
	return mc
}

func (mc *MetricsCollector) initMetrics() {
	mc.notificationDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatched_total",
			Help: "Total number of notifications persisted",
		},
		[]string{"kind"},
	)

	mc.notificationDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivered_total",
			Help: "Total number of notifications pushed to live connections",
		},
		[]string{"kind"},
	)

	mc.notificationPushFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_push_failed_total",
			Help: "Total number of live pushes that could not be delivered",
		},
		[]string{"reason"},
	)

	mc.wsConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of bound websocket connections",
		},
	)

	mc.wsMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_messages_total",
			Help: "Total number of websocket messages",
		},
		[]string{"direction", "type"},
	)

	mc.discountTransitionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discount_transition_total",
			Help: "Total number of discount lifecycle transitions",
		},
		[]string{"transition", "status"},
	)

	mc.discountScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "discount_scan_duration_seconds",
			Help:    "Duration of discount lifecycle scans",
			Buckets: prometheus.DefBuckets,
		},
	)

	mc.discountScanItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discount_scan_items_total",
			Help: "Total number of discounts processed by lifecycle scans",
		},
		[]string{"status"},
	)

	mc.priceRecomputeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_recompute_total",
			Help: "Total number of product price recomputations",
		},
		[]string{"status"},
	)

	mc.httpRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	mc.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	mc.memoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)

	mc.goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "goroutine_count",
			Help: "Number of goroutines",
		},
	)
}

// RecordNotificationDispatched records a persisted notification
func (mc *MetricsCollector) RecordNotificationDispatched(kind string) {
	mc.notificationDispatchedTotal.WithLabelValues(kind).Inc()
}

// RecordNotificationDelivered records a live push delivery
func (mc *MetricsCollector) RecordNotificationDelivered(kind string) {
	mc.notificationDeliveredTotal.WithLabelValues(kind).Inc()
}

// RecordNotificationPushFailed records a failed live push
func (mc *MetricsCollector) RecordNotificationPushFailed(reason string) {
	mc.notificationPushFailedTotal.WithLabelValues(reason).Inc()
}

// SetWSConnections updates the bound connection gauge
func (mc *MetricsCollector) SetWSConnections(count int) {
	mc.wsConnectionsActive.Set(float64(count))
}

// RecordWSMessage records a websocket message
func (mc *MetricsCollector) RecordWSMessage(direction, msgType string) {
	mc.wsMessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// RecordDiscountTransition records a lifecycle transition
func (mc *MetricsCollector) RecordDiscountTransition(transition, status string) {
	mc.discountTransitionTotal.WithLabelValues(transition, status).Inc()
}

// RecordDiscountScanDuration records the duration of a lifecycle scan
func (mc *MetricsCollector) RecordDiscountScanDuration(duration time.Duration) {
	mc.discountScanDuration.Observe(duration.Seconds())
}

// RecordDiscountScanItem records a discount processed by a scan
func (mc *MetricsCollector) RecordDiscountScanItem(status string) {
	mc.discountScanItemsTotal.WithLabelValues(status).Inc()
}

// RecordPriceRecompute records a product price recomputation
func (mc *MetricsCollector) RecordPriceRecompute(status string) {
	mc.priceRecomputeTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request
func (mc *MetricsCollector) RecordHTTPRequest(method, path, status string) {
	mc.httpRequestTotal.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records an HTTP request duration
func (mc *MetricsCollector) RecordHTTPDuration(method, path string, duration time.Duration) {
	mc.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateSystemMetrics refreshes runtime gauges
func (mc *MetricsCollector) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.memoryUsage.Set(float64(m.Alloc))
	mc.goroutineCount.Set(float64(runtime.NumGoroutine()))
}

// StartSystemMetricsCollection refreshes runtime gauges until ctx is done
func (mc *MetricsCollector) StartSystemMetricsCollection(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.UpdateSystemMetrics()
		}
	}
}
