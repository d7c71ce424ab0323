package alns

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/crop-planner/internal/testfixtures"
	"github.com/jakechorley/crop-planner/pkg/core/allocator"
	"github.com/jakechorley/crop-planner/pkg/core/candidates"
	"github.com/jakechorley/crop-planner/pkg/core/feasibility"
	"github.com/jakechorley/crop-planner/pkg/core/metrics"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

var (
	field = model.Field{ID: "f1", Area: 100, DailyFixedCost: 10, FallowPeriodDays: 28}
	other = model.Field{ID: "f2", Area: 100, DailyFixedCost: 10, FallowPeriodDays: 28}
	bean  = model.Crop{ID: "bean", AreaPerUnit: 1, RevenuePerArea: 50}
	kale  = model.Crop{ID: "kale", AreaPerUnit: 1, RevenuePerArea: 20}
)

func candidate(f model.Field, crop model.Crop, start string, days int, quantity float64) model.AllocationCandidate {
	s := testfixtures.Date(start)
	c := model.AllocationCandidate{
		Field:          f,
		Crop:           crop,
		StartDate:      s,
		CompletionDate: s.AddDate(0, 0, days-1),
		GrowthDays:     days,
		YieldFactor:    1,
	}
	return c.WithQuantity(quantity)
}

func smallProblem() *model.Problem {
	return &model.Problem{
		PlanningStart: testfixtures.Date("2024-01-01"),
		PlanningEnd:   testfixtures.Date("2024-12-31"),
		Fields:        []model.Field{field, other},
		Crops:         []model.Crop{bean, kale},
	}
}

func newEngine(cfg Config, problem *model.Problem, pool *candidates.Pool) *Engine {
	return NewEngine(cfg, problem, pool, metrics.NewEvaluator(problem.Rules), zap.NewNop())
}

func TestOperator_String(t *testing.T) {
	names := make(map[string]bool)
	for _, op := range DestroyOperators {
		names[op.String()] = true
	}
	for _, op := range RepairOperators {
		names[op.String()] = true
	}
	assert.Len(t, names, 8)
	assert.NotContains(t, names, "unknown")
	assert.Equal(t, "unknown", DestroyOperator(42).String())
	assert.Equal(t, "unknown", RepairOperator(42).String())
}

func TestSelectOp(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for range 50 {
		assert.Equal(t, 1, selectOp([]float64{0, 3, 0}, rng))
	}
	assert.Equal(t, 0, selectOp([]float64{0, 0}, rng))
}

func TestUpdateWeight(t *testing.T) {
	weights := []float64{1, 1}
	updateWeight(weights, 0, 33, 0.2)
	assert.InDelta(t, 0.8+6.6, weights[0], 1e-9)

	for range 100 {
		updateWeight(weights, 1, 0, 0.2)
	}
	assert.Equal(t, minWeight, weights[1])
}

func TestDestroy_EmptySolutionNotApplicable(t *testing.T) {
	e := newEngine(Config{}, smallProblem(), candidates.NewPool(nil))
	for _, op := range DestroyOperators {
		_, removed, err := e.destroy(op, model.Solution{})
		assert.ErrorIs(t, err, ErrNotApplicable, op.String())
		assert.Empty(t, removed)
	}
}

func TestDestroy_WorstRemovalDropsLowestRate(t *testing.T) {
	e := newEngine(Config{DestroyFraction: 0.5}, smallProblem(), candidates.NewPool(nil))
	good := model.NewAllocation(candidate(field, bean, "2024-03-01", 60, 100))
	poor := model.NewAllocation(candidate(other, kale, "2024-03-01", 60, 20))

	partial, removed, err := e.destroy(WorstRemoval, model.NewSolution(good, poor))
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, poor.ID, removed[0].ID)
	assert.Equal(t, []model.CropAllocation{good}, partial.Allocations)
}

func TestDestroy_FieldRemovalEmptiesOneField(t *testing.T) {
	e := newEngine(Config{Seed: 3}, smallProblem(), candidates.NewPool(nil))
	solution := model.NewSolution(
		model.NewAllocation(candidate(field, bean, "2024-03-01", 60, 100)),
		model.NewAllocation(candidate(field, bean, "2024-07-01", 60, 100)),
		model.NewAllocation(candidate(other, kale, "2024-03-01", 60, 100)),
	)

	partial, removed, err := e.destroy(FieldRemoval, solution)
	require.NoError(t, err)
	require.NotEmpty(t, removed)
	fieldID := removed[0].Field.ID
	for _, a := range removed {
		assert.Equal(t, fieldID, a.Field.ID)
	}
	assert.Empty(t, partial.OnField(fieldID))
	assert.Equal(t, solution.Len(), partial.Len()+len(removed))
}

func TestDestroy_TimeSliceCoversWholeYear(t *testing.T) {
	e := newEngine(Config{TimeSliceDays: 400}, smallProblem(), candidates.NewPool(nil))
	solution := model.NewSolution(
		model.NewAllocation(candidate(field, bean, "2024-01-10", 60, 100)),
		model.NewAllocation(candidate(other, kale, "2024-10-01", 60, 100)),
	)

	partial, removed, err := e.destroy(TimeSliceRemoval, solution)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.True(t, partial.IsEmpty())
}

func TestDestroy_RandomRemovalTakesFraction(t *testing.T) {
	e := newEngine(Config{DestroyFraction: 0.5, Seed: 9}, smallProblem(), candidates.NewPool(nil))
	solution := model.NewSolution(
		model.NewAllocation(candidate(field, bean, "2024-01-10", 60, 100)),
		model.NewAllocation(candidate(field, kale, "2024-06-01", 60, 100)),
		model.NewAllocation(candidate(other, bean, "2024-02-01", 60, 100)),
		model.NewAllocation(candidate(other, kale, "2024-08-01", 60, 100)),
	)

	partial, removed, err := e.destroy(RandomRemoval, solution)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	assert.Equal(t, 2, partial.Len())
	assert.NotEqual(t, removed[0].ID, removed[1].ID)
	for _, a := range removed {
		_, inSolution := solution.Find(a.ID)
		assert.True(t, inSolution)
		_, stillPlanted := partial.Find(a.ID)
		assert.False(t, stillPlanted)
	}
}

func TestDestroy_RelatedRemovalStaysNearSeed(t *testing.T) {
	a := model.NewAllocation(candidate(field, bean, "2024-03-01", 60, 100))
	b := model.NewAllocation(candidate(field, kale, "2024-07-01", 60, 100))
	c := model.NewAllocation(candidate(other, kale, "2024-05-01", 60, 100))
	solution := model.NewSolution(a, b, c)

	removedIDs := func(e *Engine) map[string]bool {
		_, removed, err := e.destroy(RelatedRemoval, solution)
		require.NoError(t, err)
		ids := make(map[string]bool, len(removed))
		for _, r := range removed {
			ids[r.ID] = true
		}
		return ids
	}

	// a relates to b by field, b to c by crop; a and c are unrelated
	t.Run("whole neighborhood", func(t *testing.T) {
		for seed := range int64(20) {
			ids := removedIDs(newEngine(Config{DestroyFraction: 1, Seed: seed}, smallProblem(), candidates.NewPool(nil)))
			assert.GreaterOrEqual(t, len(ids), 2)
			if ids[a.ID] && ids[c.ID] {
				assert.True(t, ids[b.ID], "a and c are only removed together through b")
			}
		}
	})

	t.Run("closest in time", func(t *testing.T) {
		for seed := range int64(20) {
			ids := removedIDs(newEngine(Config{DestroyFraction: 0.67, Seed: seed}, smallProblem(), candidates.NewPool(nil)))
			assert.Len(t, ids, 2)
			assert.True(t, ids[b.ID])
			assert.False(t, ids[a.ID] && ids[c.ID])
		}
	})
}

func TestRepair_CandidateInsertPullsUnusedPoolCandidates(t *testing.T) {
	pool := candidates.NewPool([]model.AllocationCandidate{
		candidate(other, kale, "2024-03-01", 60, 100),
	})
	e := newEngine(Config{}, smallProblem(), pool)
	original := model.NewAllocation(candidate(field, bean, "2024-03-01", 60, 100))

	greedy, err := e.repair(GreedyInsert, model.Solution{}, []model.CropAllocation{original})
	require.NoError(t, err)
	assert.Equal(t, 1, greedy.Len())

	repaired, err := e.repair(CandidateInsert, model.Solution{}, []model.CropAllocation{original})
	require.NoError(t, err)
	require.Equal(t, 2, repaired.Len())
	_, ok := repaired.Find(original.ID)
	assert.True(t, ok)
	assert.Len(t, repaired.OnField("f2"), 1)
	assert.Equal(t, "kale", repaired.OnField("f2")[0].Crop.ID)
	assert.NoError(t, feasibility.Validate(repaired))
}

func TestRepair_GreedyPrefersBetterPooledPlacement(t *testing.T) {
	better := candidate(field, bean, "2024-03-01", 60, 100)
	e := newEngine(Config{}, smallProblem(), candidates.NewPool([]model.AllocationCandidate{better}))

	original := model.NewAllocation(candidate(field, bean, "2024-03-01", 60, 40))
	for _, op := range RepairOperators {
		repaired, err := e.repair(op, model.Solution{}, []model.CropAllocation{original})
		require.NoError(t, err)
		require.Equal(t, 1, repaired.Len(), op.String())
		assert.Equal(t, original.ID, repaired.Allocations[0].ID, op.String())
		assert.Equal(t, 100.0, repaired.Allocations[0].Quantity, op.String())
	}
}

func TestRepair_RegretInsertsConstrainedAllocationFirst(t *testing.T) {
	// Both want the March slot on f1; kale also fits on f2, bean has nowhere else
	pool := candidates.NewPool([]model.AllocationCandidate{
		candidate(other, kale, "2024-03-01", 60, 100),
	})
	e := newEngine(Config{}, smallProblem(), pool)

	beanAlloc := model.NewAllocation(candidate(field, bean, "2024-03-01", 60, 100))
	kaleAlloc := model.NewAllocation(candidate(field, kale, "2024-03-01", 60, 100))

	repaired := e.regretInsert(model.Solution{}, []model.CropAllocation{kaleAlloc, beanAlloc})
	require.Equal(t, 2, repaired.Len())
	assert.NoError(t, feasibility.Validate(repaired))

	placed, ok := repaired.Find(kaleAlloc.ID)
	require.True(t, ok)
	assert.Equal(t, "f2", placed.Field.ID)
}

func TestRun_EmptySolutionDoesNotConverge(t *testing.T) {
	e := newEngine(Config{MaxIterations: 25}, smallProblem(), candidates.NewPool(nil))

	result, err := e.Run(context.Background(), model.Solution{})
	require.NoError(t, err)
	assert.True(t, result.DidNotConverge)
	assert.Equal(t, 25, result.Stats.Iterations)
	assert.Zero(t, result.Stats.Improvements)

	failures := 0
	for _, n := range result.Stats.OperatorFailures {
		failures += n
	}
	assert.Equal(t, 25, failures)
	assert.True(t, result.Solution.IsEmpty())
}

func TestRun_FindsBetterQuantity(t *testing.T) {
	pool := candidates.NewPool([]model.AllocationCandidate{
		candidate(field, bean, "2024-03-01", 60, 100),
	})
	e := newEngine(Config{MaxIterations: 50, Seed: 11}, smallProblem(), pool)

	initial := model.NewSolution(model.NewAllocation(candidate(field, bean, "2024-03-01", 60, 40)))
	result, err := e.Run(context.Background(), initial)
	require.NoError(t, err)

	assert.False(t, result.DidNotConverge)
	assert.Greater(t, result.Profit, result.InitialProfit)
	require.Equal(t, 1, result.Solution.Len())
	assert.Equal(t, 100.0, result.Solution.Allocations[0].Quantity)
	assert.Equal(t, initial.Allocations[0].ID, result.Solution.Allocations[0].ID)
}

func TestRun_UnchangedIterationsDoNotRaiseWeights(t *testing.T) {
	only := candidate(field, bean, "2024-03-01", 60, 100)
	e := newEngine(Config{MaxIterations: 30, Seed: 4}, smallProblem(), candidates.NewPool([]model.AllocationCandidate{only}))

	// Every destroy/repair pair can only put the same allocation back
	result, err := e.Run(context.Background(), model.NewSolution(model.NewAllocation(only)))
	require.NoError(t, err)

	assert.True(t, result.DidNotConverge)
	assert.Zero(t, result.Stats.Improvements)
	assert.Zero(t, result.Stats.AcceptedWorse)
	assert.Positive(t, result.Stats.Unchanged)
	assert.Equal(t, result.Stats.Unchanged, result.Stats.Accepted)
	for name, w := range result.Stats.DestroyWeights {
		assert.LessOrEqual(t, w, 1.0, name)
	}
	for name, w := range result.Stats.RepairWeights {
		assert.LessOrEqual(t, w, 1.0, name)
	}
}

func TestDefaultConfig_AcceptedScoreBelowImproved(t *testing.T) {
	cfg := DefaultConfig()
	assert.LessOrEqual(t, cfg.ScoreAccepted, cfg.ScoreImproved)
	assert.LessOrEqual(t, cfg.ScoreImproved, cfg.ScoreNewBest)
}

func TestRun_RespectsMinimumTargets(t *testing.T) {
	problem := smallProblem()
	loss := model.Crop{ID: "loss", AreaPerUnit: 1, RevenuePerArea: 1}
	problem.Crops = append(problem.Crops, loss)
	problem.CropTargets = []model.CropTarget{{CropID: "loss", MinQuantity: 100}}
	e := newEngine(Config{MaxIterations: 60, Seed: 5}, problem, candidates.NewPool(nil))

	initial := model.NewSolution(model.NewAllocation(candidate(field, loss, "2024-03-01", 60, 100)))
	result, err := e.Run(context.Background(), initial)
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.Solution.CropQuantity("loss"))
}

func TestRun_NeverWorseThanGreedy(t *testing.T) {
	problem := testfixtures.SampleProblem()
	evaluator := metrics.NewEvaluator(problem.Rules)

	genCfg := candidates.DefaultConfig()
	genCfg.StartDateRule = "FREQ=WEEKLY;BYDAY=MO"
	pool, err := candidates.NewGenerator(genCfg, evaluator, zap.NewNop()).Generate(context.Background(), problem)
	require.NoError(t, err)

	greedy := allocator.Construct(allocator.Config{Evaluator: evaluator}, pool.All())
	greedyProfit := evaluator.TotalProfit(greedy.Solution)

	cfg := DefaultConfig()
	cfg.MaxIterations = 40
	cfg.Seed = 7
	result, err := NewEngine(cfg, problem, pool, evaluator, zap.NewNop()).Run(context.Background(), greedy.Solution)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.Profit, greedyProfit)
	assert.InDelta(t, evaluator.TotalProfit(result.Solution), result.Profit, 1e-6)
	assert.NoError(t, feasibility.Validate(result.Solution))
	assert.Equal(t, 40, result.Stats.Iterations)
	assert.Len(t, result.Stats.DestroyWeights, len(DestroyOperators))
	assert.Len(t, result.Stats.RepairWeights, len(RepairOperators))
	assert.Less(t, result.Stats.FinalTemperature, math.Max(1, 0.05*greedyProfit)+1e-9)
}
