package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/crop-planner/internal/testfixtures"
	"github.com/jakechorley/crop-planner/pkg/core/feasibility"
	"github.com/jakechorley/crop-planner/pkg/core/metrics"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

var (
	field  = model.Field{ID: "f1", Area: 100, DailyFixedCost: 10, FallowPeriodDays: 28}
	bean   = model.Crop{ID: "bean", AreaPerUnit: 1, RevenuePerArea: 50}
	radish = model.Crop{ID: "radish", AreaPerUnit: 1, RevenuePerArea: 2}
)

func candidate(crop model.Crop, start string, days int, quantity float64) model.AllocationCandidate {
	s := testfixtures.Date(start)
	c := model.AllocationCandidate{
		Field:          field,
		Crop:           crop,
		StartDate:      s,
		CompletionDate: s.AddDate(0, 0, days-1),
		GrowthDays:     days,
		YieldFactor:    1,
	}
	return c.WithQuantity(quantity)
}

// mockCriterion vetoes every candidate of one crop and reports a fixed error count
type mockCriterion struct {
	name       string
	vetoCropID string
	errors     []ValidationError
}

func (m *mockCriterion) Name() string { return m.name }

func (m *mockCriterion) IsCandidateValid(state *PlanState, c model.AllocationCandidate) bool {
	return c.Crop.ID != m.vetoCropID
}

func (m *mockCriterion) ValidateSolution(state *PlanState) []ValidationError {
	return m.errors
}

func config(criteria ...Criterion) Config {
	return Config{Criteria: criteria, Evaluator: metrics.NewEvaluator(nil)}
}

func TestRankCandidates_Order(t *testing.T) {
	evaluator := metrics.NewEvaluator(nil)
	// A larger quantity spreads the fixed cost; equal rates and profits fall back to the earlier start
	big := candidate(bean, "2024-05-01", 10, 100)
	small := candidate(bean, "2024-03-01", 10, 50)
	early := candidate(bean, "2024-01-01", 10, 50)
	poor := candidate(radish, "2024-01-01", 10, 100)

	ranked := RankCandidates(evaluator, []model.AllocationCandidate{poor, small, big, early}, nil)
	require.Len(t, ranked, 4)
	assert.Equal(t, big.Key(), ranked[0].Candidate.Key())
	assert.Equal(t, early.Key(), ranked[1].Candidate.Key())
	assert.Equal(t, small.Key(), ranked[2].Candidate.Key())
	assert.Equal(t, poor.Key(), ranked[3].Candidate.Key())
}

func TestConstruct_InsertsBestFeasibleCandidates(t *testing.T) {
	a := candidate(bean, "2024-03-01", 60, 100)
	overlapping := candidate(bean, "2024-04-01", 60, 100)
	later := candidate(bean, "2024-07-01", 60, 100)

	outcome := Construct(config(), []model.AllocationCandidate{a, overlapping, later})
	require.True(t, outcome.Success)
	assert.Equal(t, 2, outcome.Inserted)
	assert.Equal(t, 2, outcome.Solution.Len())
	assert.NoError(t, feasibility.Validate(outcome.Solution))
	assert.Empty(t, outcome.ValidationErrors)
	assert.Empty(t, outcome.UnmetTargets)
}

func TestConstruct_RejectsLossMakingCandidates(t *testing.T) {
	// radish earns 2 per unit: 100 x 2 = 200 revenue against 60 x 10 = 600 cost
	outcome := Construct(config(), []model.AllocationCandidate{candidate(radish, "2024-03-01", 60, 100)})
	assert.True(t, outcome.Solution.IsEmpty())
	assert.Equal(t, 1, outcome.Rejected)
}

func TestConstruct_MinimumTargetAllowsLoss(t *testing.T) {
	cfg := config()
	cfg.MinQuantities = map[string]float64{"radish": 150}

	first := candidate(radish, "2024-01-01", 30, 100)
	second := candidate(radish, "2024-04-01", 30, 100)
	third := candidate(radish, "2024-08-01", 30, 100)

	outcome := Construct(cfg, []model.AllocationCandidate{first, second, third})
	// Two insertions reach 200 >= 150; the third is loss-making and rejected
	assert.Equal(t, 2, outcome.Inserted)
	assert.Equal(t, 1, outcome.Rejected)
	assert.Empty(t, outcome.UnmetTargets)
	assert.True(t, outcome.Success)
}

func TestConstruct_ReportsUnmetTargets(t *testing.T) {
	cfg := config()
	cfg.MinQuantities = map[string]float64{"radish": 500}

	outcome := Construct(cfg, []model.AllocationCandidate{candidate(radish, "2024-01-01", 30, 100)})
	require.Len(t, outcome.UnmetTargets, 1)
	assert.Equal(t, "radish", outcome.UnmetTargets[0].CropID)
	assert.Equal(t, 400.0, outcome.UnmetTargets[0].Shortfall())
	assert.False(t, outcome.Success)
}

func TestConstruct_CriterionVeto(t *testing.T) {
	veto := &mockCriterion{name: "NoBeans", vetoCropID: "bean"}
	outcome := Construct(config(veto), []model.AllocationCandidate{candidate(bean, "2024-03-01", 60, 100)})
	assert.True(t, outcome.Solution.IsEmpty())
}

func TestConstruct_CriterionValidationErrors(t *testing.T) {
	failing := &mockCriterion{
		name:   "AlwaysFails",
		errors: []ValidationError{{CriterionName: "AlwaysFails", Description: "nope"}},
	}
	outcome := Construct(config(failing), []model.AllocationCandidate{candidate(bean, "2024-03-01", 60, 100)})
	require.Len(t, outcome.ValidationErrors, 1)
	assert.False(t, outcome.Success)
	assert.Error(t, AsError(outcome.ValidationErrors))
}

func TestFill_KeepsExistingAllocationsAndUsesFreedCapacity(t *testing.T) {
	existing := model.NewAllocation(candidate(bean, "2024-03-01", 60, 100))
	start := model.NewSolution(existing)

	outcome := Fill(config(), start, []model.AllocationCandidate{
		existing.AllocationCandidate,
		candidate(bean, "2024-04-01", 30, 100),
		candidate(bean, "2024-08-01", 30, 100),
	})

	assert.Equal(t, 1, outcome.Inserted)
	assert.Equal(t, 2, outcome.Solution.Len())
	_, ok := outcome.Solution.Find(existing.ID)
	assert.True(t, ok)

	// The input solution is untouched
	assert.Equal(t, 1, start.Len())
}

func TestValidateSolution_CoreInvariants(t *testing.T) {
	a := model.NewAllocation(candidate(bean, "2024-03-01", 60, 100))
	dup := a
	zero := model.NewAllocation(candidate(bean, "2024-09-01", 10, 0))

	errors := ValidateSolution(&PlanState{Solution: model.NewSolution(a, dup, zero)}, nil)
	require.Len(t, errors, 2)
	for _, err := range errors {
		assert.Equal(t, "CoreInvariant", err.CriterionName)
	}
	assert.Contains(t, errors[0].Description, "more than once")
	assert.Contains(t, errors[1].Description, "must be positive")
}

func TestPlanState_RemainingTarget(t *testing.T) {
	state := &PlanState{
		Solution:      model.NewSolution(model.NewAllocation(candidate(bean, "2024-03-01", 60, 40))),
		MinQuantities: map[string]float64{"bean": 100},
	}
	assert.Equal(t, 60.0, state.RemainingTarget("bean"))
	assert.True(t, state.TargetUnmet("bean"))
	assert.Equal(t, 0.0, state.RemainingTarget("radish"))
}
