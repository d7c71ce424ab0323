package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/crop-planner/internal/config"
	"github.com/jakechorley/crop-planner/pkg/core/allocator"
	"github.com/jakechorley/crop-planner/pkg/core/allocator/criteria"
	"github.com/jakechorley/crop-planner/pkg/core/alns"
	"github.com/jakechorley/crop-planner/pkg/core/candidates"
	"github.com/jakechorley/crop-planner/pkg/core/feasibility"
	"github.com/jakechorley/crop-planner/pkg/core/localsearch"
	"github.com/jakechorley/crop-planner/pkg/core/metrics"
	"github.com/jakechorley/crop-planner/pkg/core/model"
	"github.com/jakechorley/crop-planner/pkg/observability"
)

// AllocationResult is one allocation with its realized economics in the final plan
type AllocationResult struct {
	Allocation model.CropAllocation
	Metrics    metrics.Result
}

// PlanResult is the outcome of an optimization or adjustment run
type PlanResult struct {
	RunID     string
	Algorithm string

	Solution     model.Solution
	TotalProfit  float64
	TotalRevenue float64
	TotalCost    float64

	// InitialProfit is the profit before the improvement phase (the greedy plan, or the
	// plan an adjustment started from)
	InitialProfit float64

	// DidNotConverge is set when the improvement phase never beat its starting plan
	DidNotConverge bool

	// Allocations are in start-date order
	Allocations  []AllocationResult
	UnmetTargets []allocator.UnmetTarget

	CandidateCount int
	Duration       time.Duration
}

// Optimize builds a crop plan: it generates candidates, constructs a greedy plan, runs
// the configured improvement phase and re-validates the result independently of the
// search that produced it
func Optimize(ctx context.Context, problem *model.Problem, cfg config.OptimizerConfig, logger *zap.Logger) (*PlanResult, error) {
	started := time.Now()
	runID := uuid.New().String()
	logger = logger.With(zap.String("run_id", runID), zap.String("algorithm", cfg.Algorithm))

	if err := problem.CheckReferences(); err != nil {
		return nil, fmt.Errorf("invalid problem: %w", err)
	}

	logger.Info("Starting optimization",
		zap.Int("fields", len(problem.Fields)),
		zap.Int("crops", len(problem.Crops)),
		zap.String("planning_start", problem.PlanningStart.Format(model.DateLayout)),
		zap.String("planning_end", problem.PlanningEnd.Format(model.DateLayout)))

	evaluator := metrics.NewEvaluator(problem.Rules)
	generationStarted := time.Now()
	pool, err := candidates.NewGenerator(CandidatesConfig(cfg), evaluator, logger).Generate(ctx, problem)
	if err != nil {
		return nil, fmt.Errorf("failed to generate candidates: %w", err)
	}
	generationDuration := time.Since(generationStarted)

	allocCfg := allocator.Config{
		Criteria:      criteria.Default(),
		Evaluator:     evaluator,
		MinQuantities: problem.MinQuantities(),
	}
	outcome := allocator.Construct(allocCfg, pool.All())
	if len(outcome.ValidationErrors) > 0 {
		return nil, fmt.Errorf("greedy construction produced an invalid plan: %w", allocator.AsError(outcome.ValidationErrors))
	}

	initialProfit := evaluator.TotalProfit(outcome.Solution)
	logger.Info("Greedy construction complete",
		zap.Int("allocations", outcome.Solution.Len()),
		zap.Int("inserted", outcome.Inserted),
		zap.Int("rejected", outcome.Rejected),
		zap.Float64("profit", initialProfit))

	solution := outcome.Solution
	summary := observability.RunSummary{
		Algorithm:          cfg.Algorithm,
		CandidateCount:     pool.Len(),
		GenerationDuration: generationDuration,
	}
	var didNotConverge bool

	switch cfg.Algorithm {
	case config.AlgorithmGreedy:
	case config.AlgorithmLocalSearch:
		lsCfg, err := LocalSearchConfig(cfg)
		if err != nil {
			return nil, err
		}
		res, err := localsearch.NewSearcher(lsCfg, problem, pool, evaluator, logger).Run(ctx, solution)
		if err != nil {
			return nil, fmt.Errorf("local search failed: %w", err)
		}
		solution = res.Solution
		didNotConverge = res.DidNotConverge
		summary.SearchPhase = "local_search"
		summary.SearchIterations = res.Iterations
	case config.AlgorithmALNS:
		res, err := alns.NewEngine(ALNSConfig(cfg), problem, pool, evaluator, logger).Run(ctx, solution)
		if err != nil {
			return nil, fmt.Errorf("alns failed: %w", err)
		}
		solution = res.Solution
		didNotConverge = res.DidNotConverge
		summary.SearchPhase = "alns"
		summary.SearchIterations = res.Stats.Iterations
		summary.DestroySelections = res.Stats.DestroySelections
		summary.RepairSelections = res.Stats.RepairSelections
	default:
		return nil, fmt.Errorf("unknown algorithm %q", cfg.Algorithm)
	}

	result, err := buildPlanResult(runID, cfg.Algorithm, solution, evaluator, allocCfg)
	if err != nil {
		return nil, err
	}
	result.InitialProfit = initialProfit
	result.DidNotConverge = didNotConverge
	result.CandidateCount = pool.Len()
	result.Duration = time.Since(started)

	summary.DidNotConverge = didNotConverge
	summary.TotalProfit = result.TotalProfit
	summary.TotalDuration = result.Duration
	observability.RecordRun(summary)

	logger.Info("Optimization complete",
		zap.Int("allocations", result.Solution.Len()),
		zap.Float64("initial_profit", initialProfit),
		zap.Float64("profit", result.TotalProfit),
		zap.Int("unmet_targets", len(result.UnmetTargets)),
		zap.Bool("did_not_converge", didNotConverge),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// buildPlanResult re-validates a finished solution and computes its economics
func buildPlanResult(runID, algorithm string, solution model.Solution, evaluator *metrics.Evaluator, allocCfg allocator.Config) (*PlanResult, error) {
	if err := feasibility.Validate(solution); err != nil {
		return nil, fmt.Errorf("final plan failed validation: %w", err)
	}
	state := &allocator.PlanState{Solution: solution, Evaluator: evaluator, MinQuantities: allocCfg.MinQuantities}
	if errs := allocator.ValidateSolution(state, allocCfg.Criteria); len(errs) > 0 {
		return nil, fmt.Errorf("final plan failed validation: %w", allocator.AsError(errs))
	}

	m := evaluator.EvaluateSolution(solution)
	sorted := solution.SortedByStart()
	allocations := make([]AllocationResult, len(sorted))
	for i, a := range sorted {
		allocations[i] = AllocationResult{Allocation: a, Metrics: m.ByAllocation[a.ID]}
	}

	unmet := allocator.UnmetTargets(solution, allocCfg.MinQuantities)
	if unmet == nil {
		unmet = []allocator.UnmetTarget{}
	}

	return &PlanResult{
		RunID:        runID,
		Algorithm:    algorithm,
		Solution:     solution,
		TotalProfit:  m.TotalProfit,
		TotalRevenue: m.TotalRevenue,
		TotalCost:    m.TotalCost,
		Allocations:  allocations,
		UnmetTargets: unmet,
	}, nil
}

// CandidatesConfig maps optimizer settings onto candidate generation
func CandidatesConfig(cfg config.OptimizerConfig) candidates.Config {
	return candidates.Config{
		QuantityLevels: cfg.QuantityLevels,
		TopK:           cfg.TopK,
		MinProfitRate:  cfg.MinProfitRate,
		Workers:        cfg.Workers,
		StartDateRule:  cfg.StartDateRule,
	}
}

// LocalSearchConfig maps optimizer settings onto the hill climb
func LocalSearchConfig(cfg config.OptimizerConfig) (localsearch.Config, error) {
	ls := localsearch.Config{
		MaxIterations:           cfg.LocalSearch.MaxIterations,
		MaxNoImprovement:        cfg.LocalSearch.MaxNoImprovement,
		MaxNeighborsPerOperator: cfg.LocalSearch.MaxNeighborsPerOperator,
		TimeBudget:              cfg.LocalSearch.TimeBudget,
		Workers:                 cfg.Workers,
		Seed:                    cfg.Seed,
	}
	if ls.TimeBudget == 0 {
		ls.TimeBudget = localsearch.DefaultConfig().TimeBudget
	}
	for _, name := range cfg.LocalSearch.Operators {
		op, err := localsearch.ParseOperator(name)
		if err != nil {
			return localsearch.Config{}, err
		}
		ls.Operators = append(ls.Operators, op)
	}
	return ls, nil
}

// ALNSConfig maps optimizer settings onto the ALNS engine. Zero values fall back to
// the engine defaults.
func ALNSConfig(cfg config.OptimizerConfig) alns.Config {
	a := alns.Config{
		MaxIterations:      cfg.ALNS.MaxIterations,
		TimeBudget:         cfg.ALNS.TimeBudget,
		DestroyFraction:    cfg.ALNS.DestroyFraction,
		TimeSliceDays:      cfg.ALNS.TimeSliceDays,
		InitialTemperature: cfg.ALNS.InitialTemperature,
		CoolingRate:        cfg.ALNS.CoolingRate,
		ReactionFactor:     cfg.ALNS.ReactionFactor,
		Seed:               cfg.Seed,
	}
	if a.TimeBudget == 0 {
		a.TimeBudget = alns.DefaultConfig().TimeBudget
	}
	return a
}

// CandidateSummary is one pooled candidate with its stand-alone economics
type CandidateSummary struct {
	Candidate model.AllocationCandidate
	Metrics   metrics.Result
}

// GenerateCandidates builds the candidate pool on its own and returns it ordered by
// stand-alone profit, best first, so the search space can be inspected before a run
func GenerateCandidates(ctx context.Context, problem *model.Problem, cfg config.OptimizerConfig, logger *zap.Logger) ([]CandidateSummary, error) {
	if err := problem.CheckReferences(); err != nil {
		return nil, fmt.Errorf("invalid problem: %w", err)
	}

	evaluator := metrics.NewEvaluator(problem.Rules)
	pool, err := candidates.NewGenerator(CandidatesConfig(cfg), evaluator, logger).Generate(ctx, problem)
	if err != nil {
		return nil, fmt.Errorf("failed to generate candidates: %w", err)
	}

	out := make([]CandidateSummary, 0, pool.Len())
	for _, c := range pool.All() {
		out = append(out, CandidateSummary{Candidate: c, Metrics: evaluator.Evaluate(c, nil)})
	}
	slices.SortStableFunc(out, func(a, b CandidateSummary) int {
		return cmp.Compare(b.Metrics.Profit, a.Metrics.Profit)
	})
	return out, nil
}
