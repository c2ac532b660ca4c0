package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	settlements     *prometheus.CounterVec
	reportCache     *prometheus.CounterVec
	overdueCount    *prometheus.GaugeVec
	overdueAmount   *prometheus.GaugeVec
	cacheVersion    prometheus.Gauge
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_finance_settlements_total",
		Help: "Settlements applied, by transaction kind and resulting status.",
	}, []string{"kind", "status"})
	reportCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_finance_report_cache_total",
		Help: "Report cache lookups by report and result.",
	}, []string{"report", "result"})
	overdueCount := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_finance_overdue_transactions",
		Help: "Open transactions past their due date at the last sweep.",
	}, []string{"kind"})
	overdueAmount := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_finance_overdue_amount",
		Help: "Remaining amount of overdue transactions at the last sweep.",
	}, []string{"kind"})
	cacheVersion := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_finance_report_cache_version",
		Help: "Last report cache version seen by this instance.",
	})
	registry.MustRegister(requests, duration, settlements, reportCache, overdueCount, overdueAmount, cacheVersion)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		settlements:     settlements,
		reportCache:     reportCache,
		overdueCount:    overdueCount,
		overdueAmount:   overdueAmount,
		cacheVersion:    cacheVersion,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveSettlement counts one applied settlement.
func (m *Metrics) ObserveSettlement(kind, status string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(kind, status).Inc()
}

// ObserveReportCache counts a report cache lookup.
func (m *Metrics) ObserveReportCache(report string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.reportCache.WithLabelValues(report, result).Inc()
}

// SetOverdue publishes the totals found by the overdue sweep.
func (m *Metrics) SetOverdue(kind string, count int, amount float64) {
	if m == nil {
		return
	}
	m.overdueCount.WithLabelValues(kind).Set(float64(count))
	m.overdueAmount.WithLabelValues(kind).Set(amount)
}

// SetCacheVersion records the report cache version after a bump.
func (m *Metrics) SetCacheVersion(version int64) {
	if m == nil {
		return
	}
	m.cacheVersion.Set(float64(version))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
