package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsTotal counts session starts by outcome (started, not_in_menu, not_open, invalid, error)
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rma_sessions_total",
		Help: "RMA sessions by start outcome",
	}, []string{"outcome"})

	// ItemsTotal counts processed serial numbers by result (ok, failed)
	ItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rma_items_total",
		Help: "Serial numbers processed by result",
	}, []string{"result"})

	// DatesEntered counts items whose date had to be typed in
	DatesEntered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rma_dates_entered_total",
		Help: "Items whose Other field was filled with the receiving date",
	})

	// PagesCaptured counts search result pages read from the terminal
	PagesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rma_pages_captured_total",
		Help: "Search result pages captured",
	})

	// ItemDuration observes how long one serial takes end to end
	ItemDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rma_item_duration_seconds",
		Help:    "Time spent processing one serial number",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	// HTTPRequestsTotal counts operator API requests
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rma_http_requests_total",
		Help: "Operator HTTP requests",
	}, []string{"method", "pattern", "status"})

	// HTTPRequestDuration observes operator API latency
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rma_http_request_duration_seconds",
		Help:    "Operator HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "pattern"})
)

// Middleware records request counts and latency
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap ResponseWriter to capture status code
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		// r.Pattern is filled in by ServeMux during routing
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(wrapped.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
