package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	chatHandler "petchat/internal/chat/handler"
	"petchat/internal/platform/health"
	rlHandler "petchat/internal/ratelimit/handler"
	request "petchat/pkg/platform/middleware/request"
)

type adminDeps struct {
	logger      *slog.Logger
	gatherer    prometheus.Gatherer
	reqMetrics  *request.Metrics
	health      *health.Handler
	rateLimits  rlHandler.Service
	chatSession chatHandler.Session
	chatState   chatHandler.StateSource
}

// newAdminRouter serves health probes, prometheus metrics, rate limit admin
// and chat status on one local listener.
func newAdminRouter(d adminDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(d.logger))
	r.Use(request.Logger(d.logger))
	r.Use(request.ContentTypeJSON)
	r.Use(request.LatencyMiddleware(d.reqMetrics, routePattern))

	d.health.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	rlHandler.New(d.rateLimits, d.logger).RegisterAdmin(r)
	chatHandler.New(d.chatSession, d.chatState, d.logger).Register(r)
	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
