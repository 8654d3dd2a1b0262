package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recipebook"

// PrometheusRecorder exports metrics through a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	usersRegistered   prometheus.Counter
	logins            *prometheus.CounterVec
	authRejections    *prometheus.CounterVec
	recipesCreated    prometheus.Counter
	recipesEdited     prometheus.Counter
	compensations     *prometheus.CounterVec
	thumbnailFailures prometheus.Counter
	storeDuration     *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewPrometheus builds a recorder and registers its collectors, plus the
// Go runtime and process collectors, on a fresh registry.
func NewPrometheus() *PrometheusRecorder {
	p := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		usersRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_registered_total",
			Help:      "Accounts created.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"status"}),
		authRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Requests rejected by the auth gate, by reason.",
		}, []string{"reason"}),
		recipesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipes_created_total",
			Help:      "Recipes created.",
		}),
		recipesEdited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipes_edited_total",
			Help:      "Recipes edited.",
		}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipe_create_compensations_total",
			Help:      "Document deletions after a failed recipe insert, by outcome.",
		}, []string{"status"}),
		thumbnailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thumbnail_failures_total",
			Help:      "Thumbnail uploads that failed after the recipe was stored.",
		}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_call_duration_seconds",
			Help:      "Duration of document, database and thumbnail store calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.usersRegistered,
		p.logins,
		p.authRejections,
		p.recipesCreated,
		p.recipesEdited,
		p.compensations,
		p.thumbnailFailures,
		p.storeDuration,
		p.httpRequests,
		p.httpDuration,
	)

	return p
}

// Gatherer returns the registry backing this recorder.
func (p *PrometheusRecorder) Gatherer() prometheus.Gatherer {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// IncUserRegistered increments the registration counter.
func (p *PrometheusRecorder) IncUserRegistered() { p.usersRegistered.Inc() }

// IncLogin increments the login counter for status.
func (p *PrometheusRecorder) IncLogin(status string) { p.logins.WithLabelValues(status).Inc() }

// IncAuthRejected counts a rejected request by reason.
func (p *PrometheusRecorder) IncAuthRejected(reason string) {
	p.authRejections.WithLabelValues(reason).Inc()
}

// IncRecipeCreated increments the recipe created counter.
func (p *PrometheusRecorder) IncRecipeCreated() { p.recipesCreated.Inc() }

// IncRecipeEdited increments the recipe edited counter.
func (p *PrometheusRecorder) IncRecipeEdited() { p.recipesEdited.Inc() }

// IncCompensation counts a create rollback by outcome.
func (p *PrometheusRecorder) IncCompensation(status string) {
	p.compensations.WithLabelValues(status).Inc()
}

// IncThumbnailFailure increments the thumbnail failure counter.
func (p *PrometheusRecorder) IncThumbnailFailure() { p.thumbnailFailures.Inc() }

// ObserveStoreDuration records a store call.
func (p *PrometheusRecorder) ObserveStoreDuration(store, op string, duration time.Duration) {
	p.storeDuration.WithLabelValues(store, op).Observe(duration.Seconds())
}

// ObserveHTTPRequest records a served request.
func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
