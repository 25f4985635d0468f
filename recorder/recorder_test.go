package recorder

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRun(id string, confidence int, total time.Duration, review bool, agents ...string) *core.OrchestrationRun {
	results := make([]core.AgentResult, 0, len(agents))
	for _, a := range agents {
		results = append(results, core.AgentResult{AgentName: a, Confidence: confidence, ProcessingTime: 100 * time.Millisecond})
	}
	return &core.OrchestrationRun{
		ID:          id,
		DocumentID:  "doc-" + id,
		Iterations:  []core.IterationResult{{Iteration: 1, AgentResults: results, OverallConfidence: confidence}},
		Summary:     core.RunSummary{TotalTime: total},
		NeedsReview: review,
		CompletedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRecorder_RecordAndRecent(t *testing.T) {
	r := New()

	r.Record(testRun("a", 80, time.Second, true, "classification"))
	r.Record(testRun("b", 90, time.Second, false, "classification"))
	r.Record(testRun("c", 95, time.Second, false, "classification"))
	r.Record(nil)

	require.Equal(t, 3, r.Len())

	recent := r.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].RunID)
	assert.Equal(t, "b", recent[1].RunID)
	assert.Equal(t, "doc-c", recent[0].DocumentID)
	assert.Equal(t, 95, recent[0].FinalConfidence)
	assert.Equal(t, 1, recent[0].Iterations)

	assert.Len(t, r.Recent(0), 3)
	assert.Len(t, r.Recent(50), 3)
}

func TestRecorder_RecentReturnsCopies(t *testing.T) {
	r := New()
	r.Record(testRun("a", 80, time.Second, false, "classification"))

	recent := r.Recent(1)
	recent[0].AgentsUsed[0] = "mutated"

	assert.Equal(t, "classification", r.Recent(1)[0].AgentsUsed[0])
}

func TestRecorder_HistoryBounded(t *testing.T) {
	r := New(func(o *Options) { o.HistorySize = 100 })

	for i := 0; i < 150; i++ {
		r.Record(testRun(fmt.Sprintf("run-%03d", i), 90, time.Second, false, "structural"))
	}

	assert.Equal(t, 100, r.Len())
	recent := r.Recent(0)
	assert.Equal(t, "run-149", recent[0].RunID)
	assert.Equal(t, "run-050", recent[len(recent)-1].RunID)
}

func TestRecorder_Aggregates(t *testing.T) {
	r := New()

	agg := r.Aggregates()
	assert.Equal(t, 0, agg.TotalRuns)
	assert.Equal(t, "", agg.MostUsedAgent)

	r.Record(testRun("a", 80, 2*time.Second, true, "classification", "structural"))
	r.Record(testRun("b", 90, 4*time.Second, false, "structural", "metadata"))
	r.Record(testRun("c", 100, 6*time.Second, false, "structural"))

	agg = r.Aggregates()
	assert.Equal(t, 3, agg.TotalRuns)
	assert.InDelta(t, 90.0, agg.MeanConfidence, 0.001)
	assert.Equal(t, 4*time.Second, agg.MeanDuration)
	assert.Equal(t, "structural", agg.MostUsedAgent)
	assert.Equal(t, 3, agg.AgentUsage["structural"])
	assert.Equal(t, 1, agg.AgentUsage["classification"])
	assert.InDelta(t, 33.33, agg.ReviewRate, 0.01)
}

func TestRecorder_MostUsedAgentTieBreak(t *testing.T) {
	r := New()
	r.Record(testRun("a", 80, time.Second, false, "structural"))
	r.Record(testRun("b", 80, time.Second, false, "classification"))

	assert.Equal(t, "classification", r.Aggregates().MostUsedAgent)
}

func TestRecorder_Reset(t *testing.T) {
	r := New()
	r.Record(testRun("a", 80, time.Second, false, "structural"))
	r.Reset()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Recent(10))
}

func TestRecorder_PrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(func(o *Options) { o.Registerer = reg })

	run := testRun("a", 86, 3*time.Second, true, "classification", "structural")
	run.Iterations[0].AgentResults = append(run.Iterations[0].AgentResults, core.AgentResult{
		AgentName: "fiscal_argentina",
		Fallback:  true,
		ErrorCode: core.CodeAgentTimeout,
	})
	r.Record(run)
	r.Record(testRun("b", 96, time.Second, false, "structural"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.runsTotal.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.runsTotal.WithLabelValues("false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.metrics.agentInvocations.WithLabelValues("structural", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.agentInvocations.WithLabelValues("fiscal_argentina", "fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.agentErrors.WithLabelValues("fiscal_argentina", "AGENT_TIMEOUT")))

	expected := `
# HELP invoicemesh_runs_total Total number of orchestration runs by review outcome
# TYPE invoicemesh_runs_total counter
invoicemesh_runs_total{needs_review="false"} 1
invoicemesh_runs_total{needs_review="true"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "invoicemesh_runs_total"))

	assert.Equal(t, 3, testutil.CollectAndCount(r.metrics.agentLatency))
}

func TestRecorder_NoMetricsWithoutRegisterer(t *testing.T) {
	r := New()
	assert.Nil(t, r.metrics)
	r.Record(testRun("a", 80, time.Second, false, "structural"))
	assert.Equal(t, 1, r.Len())
}

func TestRecorder_Concurrent(t *testing.T) {
	r := New(func(o *Options) {
		o.HistorySize = 10
		o.Registerer = prometheus.NewRegistry()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Record(testRun(fmt.Sprintf("r%d", i), 90, time.Second, false, "structural"))
			_ = r.Recent(5)
			_ = r.Aggregates()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, r.Len())
	assert.Equal(t, 20.0, testutil.ToFloat64(r.metrics.runsTotal.WithLabelValues("false")))
}
