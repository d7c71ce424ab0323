package localsearch

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/crop-planner/pkg/core/allocator"
	"github.com/jakechorley/crop-planner/pkg/core/candidates"
	"github.com/jakechorley/crop-planner/pkg/core/feasibility"
	"github.com/jakechorley/crop-planner/pkg/core/metrics"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// StopReason records why the search ended
type StopReason string

const (
	StopMaxIterations StopReason = "max_iterations"
	StopNoImprovement StopReason = "no_improvement"
	StopTimeBudget    StopReason = "time_budget"
	StopCancelled     StopReason = "cancelled"
)

const improvementEpsilon = 1e-9

// Config bounds the hill climb
type Config struct {
	MaxIterations int

	// MaxNoImprovement stops the search after this many consecutive rounds without an
	// improving neighbor
	MaxNoImprovement int

	// MaxNeighborsPerOperator caps how many neighbors each operator contributes per round.
	// Larger neighborhoods are sampled.
	MaxNeighborsPerOperator int

	// TimeBudget is a wall-clock limit checked between iterations (0 = none)
	TimeBudget time.Duration

	// Workers bounds parallel neighbor scoring (0 = GOMAXPROCS)
	Workers int

	// Operators restricts the neighborhood (empty = all)
	Operators []Operator

	Seed int64
}

// DefaultConfig returns the standard search settings
func DefaultConfig() Config {
	return Config{
		MaxIterations:           200,
		MaxNoImprovement:        20,
		MaxNeighborsPerOperator: 30,
		TimeBudget:              30 * time.Second,
	}
}

// Result is the outcome of a search
type Result struct {
	Solution      model.Solution
	Profit        float64
	InitialProfit float64

	Iterations   int
	Improvements int
	StopReason   StopReason

	// DidNotConverge is set when no round found an improving neighbor
	DidNotConverge bool

	// OperatorImprovements counts accepted moves per operator name
	OperatorImprovements map[string]int
}

// Searcher runs best-improvement hill climbing over the candidate pool
type Searcher struct {
	cfg       Config
	problem   *model.Problem
	pool      *candidates.Pool
	evaluator *metrics.Evaluator
	logger    *zap.Logger
	rng       *rand.Rand
}

// NewSearcher creates a searcher
func NewSearcher(cfg Config, problem *model.Problem, pool *candidates.Pool, evaluator *metrics.Evaluator, logger *zap.Logger) *Searcher {
	defaults := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.MaxNoImprovement <= 0 {
		cfg.MaxNoImprovement = defaults.MaxNoImprovement
	}
	if cfg.MaxNeighborsPerOperator <= 0 {
		cfg.MaxNeighborsPerOperator = defaults.MaxNeighborsPerOperator
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if len(cfg.Operators) == 0 {
		cfg.Operators = AllOperators
	}

	return &Searcher{
		cfg:       cfg,
		problem:   problem,
		pool:      pool,
		evaluator: evaluator,
		logger:    logger,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Run climbs from the initial solution, each round moving to the best strictly
// improving neighbor. The returned profit is never below the initial profit.
// Budgets and cancellation end the search early without an error; an error means the
// final solution broke a feasibility invariant.
func (s *Searcher) Run(ctx context.Context, initial model.Solution) (*Result, error) {
	started := time.Now()
	current := initial
	currentProfit := s.evaluator.TotalProfit(current)

	result := &Result{
		InitialProfit:        currentProfit,
		OperatorImprovements: make(map[string]int),
	}

	noImprovement := 0
	for result.Iterations < s.cfg.MaxIterations {
		if ctx.Err() != nil {
			result.StopReason = StopCancelled
			break
		}
		if s.cfg.TimeBudget > 0 && time.Since(started) >= s.cfg.TimeBudget {
			result.StopReason = StopTimeBudget
			break
		}
		result.Iterations++

		best, bestProfit, err := s.bestNeighbor(ctx, s.neighborhood(current), currentProfit)
		if err != nil {
			result.StopReason = StopCancelled
			break
		}

		if best == nil {
			noImprovement++
			if noImprovement >= s.cfg.MaxNoImprovement {
				result.StopReason = StopNoImprovement
				break
			}
			continue
		}

		s.logger.Debug("Accepted improving move",
			zap.Int("iteration", result.Iterations),
			zap.String("operator", best.op.String()),
			zap.Float64("profit", bestProfit),
			zap.Float64("gain", bestProfit-currentProfit))

		current, currentProfit = best.solution, bestProfit
		result.Improvements++
		result.OperatorImprovements[best.op.String()]++
		noImprovement = 0
	}
	if result.StopReason == "" {
		result.StopReason = StopMaxIterations
	}

	if err := feasibility.Validate(current); err != nil {
		return nil, fmt.Errorf("local search produced an infeasible solution: %w", err)
	}

	result.Solution = current
	result.Profit = currentProfit
	result.DidNotConverge = result.Improvements == 0

	s.logger.Info("Local search finished",
		zap.Int("iterations", result.Iterations),
		zap.Int("improvements", result.Improvements),
		zap.String("stop_reason", string(result.StopReason)),
		zap.Float64("initial_profit", result.InitialProfit),
		zap.Float64("profit", result.Profit),
		zap.Bool("did_not_converge", result.DidNotConverge),
		zap.Duration("elapsed", time.Since(started)))

	return result, nil
}

// neighborhood collects feasible neighbors from every operator, sampling operators
// that produce more than the cap
func (s *Searcher) neighborhood(current model.Solution) []neighbor {
	var out []neighbor
	for _, op := range s.cfg.Operators {
		solutions := s.generate(op, current)
		solutions = filterTargets(solutions, current, s.problem.MinQuantities())

		if len(solutions) > s.cfg.MaxNeighborsPerOperator {
			s.rng.Shuffle(len(solutions), func(i, j int) {
				solutions[i], solutions[j] = solutions[j], solutions[i]
			})
			solutions = solutions[:s.cfg.MaxNeighborsPerOperator]
		}
		for _, sol := range solutions {
			out = append(out, neighbor{op: op, solution: sol})
		}
	}
	return out
}

// bestNeighbor scores neighbors in parallel and returns the best one that strictly
// improves on the current profit, or nil. Scoring is read-only so each worker writes
// only its own slot.
func (s *Searcher) bestNeighbor(ctx context.Context, neighbors []neighbor, currentProfit float64) (*neighbor, float64, error) {
	scores := make([]float64, len(neighbors))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Workers)
	for i := range neighbors {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			scores[i] = s.evaluator.TotalProfit(neighbors[i].solution)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}

	bestIdx := -1
	bestProfit := currentProfit
	for i, score := range scores {
		if score > bestProfit+improvementEpsilon {
			bestIdx, bestProfit = i, score
		}
	}
	if bestIdx < 0 {
		return nil, currentProfit, nil
	}
	return &neighbors[bestIdx], bestProfit, nil
}

// filterTargets drops neighbors that push a targeted crop further below its minimum
func filterTargets(solutions []model.Solution, current model.Solution, minQuantities map[string]float64) []model.Solution {
	if len(minQuantities) == 0 {
		return solutions
	}
	out := solutions[:0]
	for _, sol := range solutions {
		if allocator.KeepsTargets(current, sol, minQuantities) {
			out = append(out, sol)
		}
	}
	return out
}
