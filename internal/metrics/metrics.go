// Package metrics holds the Prometheus collectors for the form service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/hyperengineering/formpath/internal/types"
)

var Renders = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "formpath_renders_total",
	Help: "The total number of render passes by outcome",
}, []string{"outcome"})

var RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "formpath_render_duration_seconds",
	Help:    "The duration of a render pass including repository reads and writes",
	Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
})

var NavigationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "formpath_navigation_decisions_total",
	Help: "The number of next-page decisions by kind (matched, default, sequential, terminal)",
}, []string{"kind"})

var AnswersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "formpath_answers_submitted_total",
	Help: "The total number of answers stored",
})

var Advances = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "formpath_advances_total",
	Help: "The number of advance attempts by result (moved, blocked, completed, stayed)",
}, []string{"result"})

var SessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "formpath_sessions_completed_total",
	Help: "The number of sessions marked completed",
})

var SessionsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
	Name: "formpath_sessions_abandoned_total",
	Help: "The number of in-progress sessions marked abandoned by the sweep worker",
})

var SnapshotUploads = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "formpath_snapshot_uploads_total",
	Help: "The number of snapshot uploads by result",
}, []string{"result"})

// collect calls the function for each metric associated with the Collector
func collect(col prometheus.Collector, do func(*dto.Metric)) {
	c := make(chan prometheus.Metric)
	go func(c chan prometheus.Metric) {
		col.Collect(c)
		close(c)
	}(c)
	for x := range c { // eg range across distinct label vector values
		m := dto.Metric{}
		_ = x.Write(&m)
		do(&m)
	}
}

// Value returns the sum of the Counter metrics associated with the Collector
// e.g. the metric for a non-vector, or the sum of the metrics for vector labels.
// If the metric is a Histogram then number of samples is used.
func Value(col prometheus.Collector) float64 {
	var total float64
	collect(col, func(m *dto.Metric) {
		if h := m.GetHistogram(); h != nil {
			total += float64(h.GetSampleCount())
		} else {
			total += m.GetCounter().GetValue()
		}
	})
	return total
}

// GetActivity reads the engine counters for the health report.
func GetActivity() types.Activity {
	return types.Activity{
		Renders:           Value(Renders),
		AnswersSubmitted:  Value(AnswersSubmitted),
		Advances:          Value(Advances),
		SessionsCompleted: Value(SessionsCompleted),
		SessionsAbandoned: Value(SessionsAbandoned),
	}
}
