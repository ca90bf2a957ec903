package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tallyhq/tally/pkg/budget"
	"github.com/tallyhq/tally/pkg/httputil"
	"github.com/tallyhq/tally/pkg/metering"
	"github.com/tallyhq/tally/pkg/observability"
	"github.com/tallyhq/tally/pkg/optimizer"
	"github.com/tallyhq/tally/pkg/realtime"
	"github.com/tallyhq/tally/pkg/reporting"
)

// Meter is the recording surface the API needs from the cost meter
type Meter interface {
	Record(ctx context.Context, ev metering.CostEvent)
}

// Enforcer is the admission surface the API needs from the budget
// enforcer
type Enforcer interface {
	WouldExceed(ctx context.Context, tenantID string, estimateCents int64) budget.Decision
}

// SpendReader reads the realtime aggregate for the spend endpoint
type SpendReader interface {
	Get(ctx context.Context, tenantID string, day time.Time) (*realtime.Aggregate, error)
}

// UsageReader answers historical report and efficiency queries
type UsageReader interface {
	Usage(ctx context.Context, tenantID string, from, to time.Time) (*reporting.Report, error)
	Efficiency(ctx context.Context, tenantID string, from, to time.Time,
		cacheHitRate float64, policy optimizer.ScorePolicy) (float64, error)
}

// Server exposes the metering engine over HTTP
type Server struct {
	router    *mux.Router
	meter     Meter
	enforcer  Enforcer
	spend     SpendReader
	estimator *optimizer.Estimator
	budgets   budget.Store
	reports   UsageReader
	policy    optimizer.ScorePolicy
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewServer creates the API server and registers its routes. A nil
// policy falls back to the default efficiency scoring weights.
func NewServer(meter Meter, enforcer Enforcer, spend SpendReader, estimator *optimizer.Estimator,
	budgets budget.Store, reports UsageReader, policy optimizer.ScorePolicy,
	logger *observability.Logger, metrics *observability.Metrics, registryHandler http.Handler) *Server {

	if policy == nil {
		policy = optimizer.DefaultScorePolicy()
	}

	s := &Server{
		router:    mux.NewRouter(),
		meter:     meter,
		enforcer:  enforcer,
		spend:     spend,
		estimator: estimator,
		budgets:   budgets,
		reports:   reports,
		policy:    policy,
		logger:    logger,
		metrics:   metrics,
	}
	s.setupRoutes(registryHandler)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(registryHandler http.Handler) {
	s.router.Use(httputil.RecoveryMiddleware(s.logger))
	s.router.Use(s.metricsMiddleware)
	s.router.Use(httputil.LoggingMiddleware(s.logger))

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/costs/events", s.recordEvent).Methods("POST")
	v1.HandleFunc("/tenants/{tenantId}/spend", s.getSpend).Methods("GET")
	v1.HandleFunc("/tenants/{tenantId}/admission", s.checkAdmission).Methods("POST")
	v1.HandleFunc("/tenants/{tenantId}/budget", s.getBudget).Methods("GET")
	v1.HandleFunc("/tenants/{tenantId}/budget", s.putBudget).Methods("PUT")
	v1.HandleFunc("/tenants/{tenantId}/plan", s.getPlan).Methods("GET")
	v1.HandleFunc("/tenants/{tenantId}/report", s.getReport).Methods("GET")
	v1.HandleFunc("/tenants/{tenantId}/efficiency", s.getEfficiency).Methods("GET")

	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")
	if registryHandler != nil {
		s.router.Handle("/metrics", registryHandler).Methods("GET")
	}
}

// metricsMiddleware records request counts and latency against the
// matched route template, so tenant IDs never explode label cardinality
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		s.metrics.InstrumentHandler(path, next).ServeHTTP(w, r)
	})
}

// Handler returns the server's HTTP handler wrapped with tracing
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "tally-api")
}

// Router returns the raw router, used by tests
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
