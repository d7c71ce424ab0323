// Package observability exports optimization run metrics in the Prometheus format.
// The planner is a batch CLI, so metrics are written to a node-exporter textfile after
// each run instead of being scraped.
package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every planner metric. It is separate from the default registry so
// textfiles carry no Go runtime series.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// runsTotal counts completed optimization runs by algorithm and convergence
	runsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "crop_plan_runs_total",
		Help: "Total optimization runs by algorithm and whether the improvement phase converged",
	}, []string{"algorithm", "converged"})

	// runDuration tracks end-to-end run latency
	runDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crop_plan_run_duration_seconds",
		Help:    "Optimization run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~200s
	}, []string{"algorithm"})

	// candidateGenerationDuration tracks how long the candidate pool took to build
	candidateGenerationDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "crop_plan_candidate_generation_duration_seconds",
		Help:    "Candidate generation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// candidatesGenerated is the size of the last candidate pool
	candidatesGenerated = factory.NewGauge(prometheus.GaugeOpts{
		Name: "crop_plan_candidates_generated",
		Help: "Number of allocation candidates in the most recent pool",
	})

	// searchIterations counts improvement iterations by phase
	searchIterations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "crop_plan_search_iterations_total",
		Help: "Total improvement iterations by search phase",
	}, []string{"phase"})

	// alnsOperatorSelections counts roulette picks by operator kind and name
	alnsOperatorSelections = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "crop_plan_alns_operator_selections_total",
		Help: "Total ALNS operator selections by kind (destroy or repair) and operator",
	}, []string{"kind", "operator"})

	// planProfit is the objective value of the most recent run
	planProfit = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crop_plan_total_profit",
		Help: "Total profit of the most recent plan by algorithm",
	}, []string{"algorithm"})
)

// RunSummary is what a finished optimization run reports
type RunSummary struct {
	Algorithm      string
	DidNotConverge bool
	TotalProfit    float64
	CandidateCount int

	GenerationDuration time.Duration
	TotalDuration      time.Duration

	// SearchPhase names the improvement phase ("local_search" or "alns"); empty for greedy only
	SearchPhase      string
	SearchIterations int

	DestroySelections map[string]int
	RepairSelections  map[string]int
}

// RecordRun updates every metric from a finished run
func RecordRun(run RunSummary) {
	runsTotal.WithLabelValues(run.Algorithm, strconv.FormatBool(!run.DidNotConverge)).Inc()
	runDuration.WithLabelValues(run.Algorithm).Observe(run.TotalDuration.Seconds())
	candidateGenerationDuration.Observe(run.GenerationDuration.Seconds())
	candidatesGenerated.Set(float64(run.CandidateCount))
	planProfit.WithLabelValues(run.Algorithm).Set(run.TotalProfit)

	if run.SearchPhase != "" {
		searchIterations.WithLabelValues(run.SearchPhase).Add(float64(run.SearchIterations))
	}
	for op, n := range run.DestroySelections {
		alnsOperatorSelections.WithLabelValues("destroy", op).Add(float64(n))
	}
	for op, n := range run.RepairSelections {
		alnsOperatorSelections.WithLabelValues("repair", op).Add(float64(n))
	}
}

// WriteTextfile writes the current metrics to path for the node-exporter textfile collector
func WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
