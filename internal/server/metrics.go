package server

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faciam-dev/gcadmin/internal/server/middleware"
	"github.com/faciam-dev/gcadmin/pkg/metrics"
)

// setupMetrics registers metrics middleware and handlers.
func setupMetrics(ctx context.Context, api huma.API, r chi.Router, queue metrics.QueueLengther) {
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	api.UseMiddleware(middleware.MetricsMW)
	if queue != nil {
		metrics.StartQueueGauge(ctx, queue, 0)
	}
}
