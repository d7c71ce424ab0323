package alns

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/crop-planner/pkg/core/allocator"
	"github.com/jakechorley/crop-planner/pkg/core/candidates"
	"github.com/jakechorley/crop-planner/pkg/core/feasibility"
	"github.com/jakechorley/crop-planner/pkg/core/metrics"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

const (
	improvementEpsilon = 1e-9
	minWeight          = 0.05
)

// Config controls the destroy/repair loop
type Config struct {
	MaxIterations int

	// TimeBudget is a wall-clock limit checked between iterations (0 = none)
	TimeBudget time.Duration

	// DestroyFraction is the share of allocations random, worst and related removal drop
	DestroyFraction float64

	// TimeSliceDays is the window length for time-slice removal
	TimeSliceDays int

	// InitialTemperature for Metropolis acceptance (0 = 5% of the initial profit)
	InitialTemperature float64

	// CoolingRate multiplies the temperature after every iteration
	CoolingRate float64

	// ReactionFactor controls how fast operator weights follow recent scores
	ReactionFactor float64

	// Scores awarded to the operator pair of an iteration. ScoreAccepted should not
	// exceed ScoreImproved so weights follow operators that actually improve the plan.
	// Iterations that leave the profit unchanged score 0.
	ScoreNewBest  float64
	ScoreImproved float64
	ScoreAccepted float64

	Seed int64
}

// DefaultConfig returns the standard ALNS settings
func DefaultConfig() Config {
	return Config{
		MaxIterations:   500,
		TimeBudget:      60 * time.Second,
		DestroyFraction: 0.3,
		TimeSliceDays:   60,
		CoolingRate:     0.995,
		ReactionFactor:  0.2,
		ScoreNewBest:    33,
		ScoreImproved:   9,
		ScoreAccepted:   5,
	}
}

// Stats describes how the search behaved
type Stats struct {
	Iterations    int
	Improvements  int
	Accepted      int
	AcceptedWorse int
	Unchanged     int
	Rejected      int

	DestroySelections map[string]int
	RepairSelections  map[string]int
	OperatorFailures  map[string]int

	DestroyWeights map[string]float64
	RepairWeights  map[string]float64

	FinalTemperature float64
	Elapsed          time.Duration
}

// Result is the best solution found and the run statistics
type Result struct {
	Solution      model.Solution
	Profit        float64
	InitialProfit float64

	// DidNotConverge is set when no iteration found a new best solution
	DidNotConverge bool

	Stats Stats
}

// Engine runs adaptive large neighborhood search
type Engine struct {
	cfg           Config
	problem       *model.Problem
	pool          *candidates.Pool
	evaluator     *metrics.Evaluator
	minQuantities map[string]float64
	logger        *zap.Logger
	rng           *rand.Rand
}

// NewEngine creates an engine
func NewEngine(cfg Config, problem *model.Problem, pool *candidates.Pool, evaluator *metrics.Evaluator, logger *zap.Logger) *Engine {
	defaults := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.DestroyFraction <= 0 || cfg.DestroyFraction > 1 {
		cfg.DestroyFraction = defaults.DestroyFraction
	}
	if cfg.TimeSliceDays <= 0 {
		cfg.TimeSliceDays = defaults.TimeSliceDays
	}
	if cfg.CoolingRate <= 0 || cfg.CoolingRate >= 1 {
		cfg.CoolingRate = defaults.CoolingRate
	}
	if cfg.ReactionFactor <= 0 || cfg.ReactionFactor > 1 {
		cfg.ReactionFactor = defaults.ReactionFactor
	}
	if cfg.ScoreNewBest == 0 && cfg.ScoreImproved == 0 && cfg.ScoreAccepted == 0 {
		cfg.ScoreNewBest, cfg.ScoreImproved, cfg.ScoreAccepted = defaults.ScoreNewBest, defaults.ScoreImproved, defaults.ScoreAccepted
	}

	return &Engine{
		cfg:           cfg,
		problem:       problem,
		pool:          pool,
		evaluator:     evaluator,
		minQuantities: problem.MinQuantities(),
		logger:        logger,
		rng:           rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Run destroys and repairs the current solution until a budget runs out and returns
// the best solution ever seen, which is never worse than the initial one.
// Operators that cannot apply are skipped and counted. An error means a repaired
// solution broke a feasibility invariant.
func (e *Engine) Run(ctx context.Context, initial model.Solution) (*Result, error) {
	started := time.Now()

	current := initial
	currentProfit := e.evaluator.TotalProfit(current)
	best, bestProfit := current, currentProfit

	destroyWeights := uniformWeights(len(DestroyOperators))
	repairWeights := uniformWeights(len(RepairOperators))

	temperature := e.cfg.InitialTemperature
	if temperature <= 0 {
		temperature = math.Max(1, 0.05*math.Abs(currentProfit))
	}

	stats := Stats{
		DestroySelections: make(map[string]int),
		RepairSelections:  make(map[string]int),
		OperatorFailures:  make(map[string]int),
	}

	for stats.Iterations < e.cfg.MaxIterations {
		if ctx.Err() != nil {
			break
		}
		if e.cfg.TimeBudget > 0 && time.Since(started) >= e.cfg.TimeBudget {
			break
		}
		stats.Iterations++

		di := selectOp(destroyWeights, e.rng)
		ri := selectOp(repairWeights, e.rng)
		destroyOp, repairOp := DestroyOperators[di], RepairOperators[ri]
		stats.DestroySelections[destroyOp.String()]++
		stats.RepairSelections[repairOp.String()]++

		partial, removed, err := e.destroy(destroyOp, current)
		if err != nil {
			stats.OperatorFailures[destroyOp.String()]++
			continue
		}
		repaired, err := e.repair(repairOp, partial, removed)
		if err != nil {
			stats.OperatorFailures[repairOp.String()]++
			continue
		}
		if err := feasibility.Validate(repaired); err != nil {
			return nil, fmt.Errorf("%s + %s produced an infeasible solution: %w", destroyOp, repairOp, err)
		}

		score := 0.0
		profit := e.evaluator.TotalProfit(repaired)
		delta := profit - currentProfit

		switch {
		case !allocator.KeepsTargets(current, repaired, e.minQuantities):
			stats.Rejected++
		case profit > bestProfit+improvementEpsilon:
			best, bestProfit = repaired, profit
			current, currentProfit = repaired, profit
			score = e.cfg.ScoreNewBest
			stats.Improvements++
			stats.Accepted++
			e.logger.Debug("New best solution",
				zap.Int("iteration", stats.Iterations),
				zap.String("destroy", destroyOp.String()),
				zap.String("repair", repairOp.String()),
				zap.Float64("profit", profit))
		case delta > improvementEpsilon:
			current, currentProfit = repaired, profit
			score = e.cfg.ScoreImproved
			stats.Accepted++
		case math.Abs(delta) <= improvementEpsilon:
			current, currentProfit = repaired, profit
			stats.Accepted++
			stats.Unchanged++
		case e.rng.Float64() < math.Exp(delta/temperature):
			current, currentProfit = repaired, profit
			score = e.cfg.ScoreAccepted
			stats.Accepted++
			stats.AcceptedWorse++
		default:
			stats.Rejected++
		}

		updateWeight(destroyWeights, di, score, e.cfg.ReactionFactor)
		updateWeight(repairWeights, ri, score, e.cfg.ReactionFactor)
		temperature *= e.cfg.CoolingRate
	}

	stats.FinalTemperature = temperature
	stats.Elapsed = time.Since(started)
	stats.DestroyWeights = make(map[string]float64, len(DestroyOperators))
	for i, op := range DestroyOperators {
		stats.DestroyWeights[op.String()] = destroyWeights[i]
	}
	stats.RepairWeights = make(map[string]float64, len(RepairOperators))
	for i, op := range RepairOperators {
		stats.RepairWeights[op.String()] = repairWeights[i]
	}

	result := &Result{
		Solution:       best,
		Profit:         bestProfit,
		InitialProfit:  e.evaluator.TotalProfit(initial),
		DidNotConverge: stats.Improvements == 0,
		Stats:          stats,
	}

	e.logger.Info("ALNS finished",
		zap.Int("iterations", stats.Iterations),
		zap.Int("improvements", stats.Improvements),
		zap.Int("accepted_worse", stats.AcceptedWorse),
		zap.Int("operator_failures", len(stats.OperatorFailures)),
		zap.Float64("initial_profit", result.InitialProfit),
		zap.Float64("profit", result.Profit),
		zap.Bool("did_not_converge", result.DidNotConverge),
		zap.Duration("elapsed", stats.Elapsed))

	return result, nil
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

// selectOp picks an index by roulette wheel over the weights
func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r < acc {
			return i
		}
	}
	return len(weights) - 1
}

// updateWeight blends the iteration score into the operator's weight
func updateWeight(weights []float64, i int, score, reaction float64) {
	weights[i] = math.Max(minWeight, (1-reaction)*weights[i]+reaction*score)
}
