package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "installments_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "installments_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// NewRouter wires the API routes. auth guards /api/v1 and may be nil.
func NewRouter(h *Handler, auth mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)

	// Public routes
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Protected routes
	api := r.PathPrefix("/api/v1").Subrouter()
	if auth != nil {
		api.Use(auth)
	}
	api.HandleFunc("/plans", h.CreatePlan).Methods("POST")
	api.HandleFunc("/plans/{id}", h.GetPlan).Methods("GET")
	api.HandleFunc("/plans/{id}/progress", h.GetProgress).Methods("GET")
	api.HandleFunc("/plans/{id}/schedule", h.ModifySchedule).Methods("PUT")
	api.HandleFunc("/installments/{id}/status", h.GetInstallmentStatus).Methods("GET")
	api.HandleFunc("/installments/{id}/capture", h.CapturePayment).Methods("POST")
	api.HandleFunc("/installments/{id}/failure", h.FailPayment).Methods("POST")
	api.HandleFunc("/installments/{id}/reminders", h.RecordReminder).Methods("POST")
	api.HandleFunc("/dashboard", h.Dashboard).Methods("GET")

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument labels metrics with the route template so ids don't explode
// the label cardinality.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		defer timer.ObserveDuration()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}
