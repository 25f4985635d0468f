package recorder

import (
	"github.com/hupe1980/invoicemesh/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// collectors are the Prometheus series exported per recorded run.
type collectors struct {
	runsTotal        *prometheus.CounterVec
	runConfidence    prometheus.Histogram
	runDuration      prometheus.Histogram
	runIterations    prometheus.Histogram
	agentInvocations *prometheus.CounterVec
	agentErrors      *prometheus.CounterVec
	agentLatency     *prometheus.HistogramVec
}

func newCollectors(reg prometheus.Registerer, namespace string) *collectors {
	f := promauto.With(reg)

	return &collectors{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of orchestration runs by review outcome",
			},
			[]string{"needs_review"},
		),
		runConfidence: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_final_confidence",
				Help:      "Final overall confidence of orchestration runs",
				Buckets:   []float64{30, 50, 70, 85, 90, 95, 100},
			},
		),
		runDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of orchestration runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
			},
		),
		runIterations: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_iterations",
				Help:      "Number of pipeline iterations per run",
				Buckets:   []float64{1, 2, 3},
			},
		),
		agentInvocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_invocations_total",
				Help:      "Total number of agent invocations by outcome",
			},
			[]string{"agent", "outcome"},
		),
		agentErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_errors_total",
				Help:      "Total number of failed agent invocations by error code",
			},
			[]string{"agent", "error_code"},
		),
		agentLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_latency_seconds",
				Help:      "Agent invocation latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
	}
}

func (c *collectors) observe(run *core.OrchestrationRun) {
	review := "false"
	if run.NeedsReview {
		review = "true"
	}
	c.runsTotal.WithLabelValues(review).Inc()
	c.runConfidence.Observe(float64(run.FinalConfidence()))
	c.runDuration.Observe(run.Summary.TotalTime.Seconds())
	c.runIterations.Observe(float64(len(run.Iterations)))

	for _, it := range run.Iterations {
		for _, r := range it.AgentResults {
			outcome := "success"
			if r.Fallback {
				outcome = "fallback"
				c.agentErrors.WithLabelValues(r.AgentName, string(r.ErrorCode)).Inc()
			}
			c.agentInvocations.WithLabelValues(r.AgentName, outcome).Inc()
			c.agentLatency.WithLabelValues(r.AgentName).Observe(r.ProcessingTime.Seconds())
		}
	}
}
