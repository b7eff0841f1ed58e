package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "courierdb_messages_appended_total",
		Help: "Messages durably appended to conversations.",
	})

	messagesEdited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "courierdb_messages_edited_total",
		Help: "Message text rewrites accepted inside the edit window.",
	})

	messagesDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "courierdb_messages_deleted_total",
		Help: "Messages removed by their sender.",
	})

	statusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "courierdb_status_transitions_total",
		Help: "Delivery state machine transitions, by target status.",
	}, []string{"to"})

	sendsCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "courierdb_sends_committed_total",
		Help: "Optimistic sends reconciled into durable messages.",
	})

	sendsRolledBack = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "courierdb_sends_rolled_back_total",
		Help: "Optimistic sends removed after a failed commit.",
	})

	mediaUploads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "courierdb_media_uploads_total",
		Help: "Attachments stored in the media backend.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "courierdb_http_requests_total",
		Help: "HTTP requests served, by method and status code.",
	}, []string{"method", "code"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "courierdb_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

func init() {
	prometheus.MustRegister(
		messagesAppended,
		messagesEdited,
		messagesDeleted,
		statusTransitions,
		sendsCommitted,
		sendsRolledBack,
		mediaUploads,
		httpRequests,
		httpDuration,
	)
}

func IncAppended()    { messagesAppended.Inc() }
func IncEdited()      { messagesEdited.Inc() }
func IncDeleted()     { messagesDeleted.Inc() }
func IncCommitted()   { sendsCommitted.Inc() }
func IncRolledBack()  { sendsRolledBack.Inc() }
func IncMediaUpload() { mediaUploads.Inc() }

func AddTransitions(to string, n int) {
	if n > 0 {
		statusTransitions.WithLabelValues(to).Add(float64(n))
	}
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler { return promhttp.Handler() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware records request counts and latency.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
