// Package web wires the bridge's HTTP handlers into a router and serves it.
package web

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bucketbridge/bucketbridge/internal/auth"
	"github.com/bucketbridge/bucketbridge/internal/handlers"
	"github.com/bucketbridge/bucketbridge/internal/services"
)

// DefaultWebhookPath is the URL segment GitBucket posts to
const DefaultWebhookPath = "gitbucket-webhook"

// RouterConfig holds the handler dependencies. Deliveries is optional.
type RouterConfig struct {
	WebhookPath string
	Dispatcher  handlers.Dispatcher
	Jobs        handlers.JobLookup
	PollLogs    handlers.PollLogReader
	Annotator   *services.LinkAnnotator
	Deliveries  interface {
		handlers.DeliveryRecorder
		handlers.DeliveryLister
	}
	RateLimiter *auth.RateLimiter // webhook only; nil means unlimited
	Logger      *slog.Logger
}

// Router is the bridge's HTTP handler
type Router struct {
	mux     *http.ServeMux
	handler http.Handler
	logger  *slog.Logger
}

// NewRouter registers every route and wraps the mux with crumb validation.
// The webhook path is exempt from crumb checks.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	path := strings.Trim(cfg.WebhookPath, "/")
	if path == "" {
		path = DefaultWebhookPath
	}

	r := &Router{mux: http.NewServeMux(), logger: cfg.Logger}

	webhook := handlers.NewWebhookHandler(cfg.Dispatcher, cfg.Logger)
	if cfg.Deliveries != nil {
		webhook.WithDeliveryStore(cfg.Deliveries)
		r.mux.Handle("GET /gitbucket-deliveries", handlers.NewDeliveriesHandler(cfg.Deliveries, cfg.Logger))
	}
	r.mux.Handle("/"+path+"/", auth.RateLimitMiddleware(cfg.RateLimiter, webhook))

	jobs := handlers.NewJobHandler(cfg.Jobs, cfg.PollLogs, cfg.Annotator, cfg.Logger)
	r.mux.HandleFunc("GET /job/{name}/GitBucketPollLog", jobs.PollLog)
	r.mux.HandleFunc("GET /job/{name}/gitbucket", jobs.Link)
	r.mux.HandleFunc("GET /job/{name}/annotate", jobs.Annotate)
	r.mux.HandleFunc("GET /job/{name}/api/json", jobs.Describe)

	r.mux.HandleFunc("GET /crumbIssuer/api/json", handlers.CrumbIssuer)
	r.mux.HandleFunc("GET /healthz", handlers.Health)

	r.handler = auth.CrumbMiddleware(r.mux, auth.NewWebhookCrumbExclusion(path))
	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	r.handler.ServeHTTP(rec, req)

	if req.URL.Path != "/healthz" {
		r.logger.Debug("request", "method", req.Method, "path", req.URL.Path, "status", rec.status, "duration", time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
