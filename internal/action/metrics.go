package action

import (
	"context"
	"strconv"

	"github.com/faciam-dev/gcadmin/pkg/metrics"
)

// Metrics counts runs and processed rows in Prometheus.
var Metrics Observer = ObserverFunc(func(_ context.Context, r Record) {
	model := r.Model.String()
	metrics.ActionRuns.WithLabelValues(model, r.Action, r.Kind).Inc()
	if r.Kind == KindDispatched {
		return
	}
	metrics.ActionDuration.WithLabelValues(model, r.Action, strconv.FormatBool(r.Background)).Observe(r.Duration.Seconds())
	if r.Result == nil {
		return
	}
	metrics.ActionRows.WithLabelValues(model, r.Action, "affected").Add(float64(r.Result.Affected))
	metrics.ActionRows.WithLabelValues(model, r.Action, "skipped").Add(float64(r.Result.Skipped - len(r.Result.Errors)))
	metrics.ActionRows.WithLabelValues(model, r.Action, "error").Add(float64(len(r.Result.Errors)))
})
