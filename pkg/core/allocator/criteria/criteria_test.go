package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/crop-planner/internal/testfixtures"
	"github.com/jakechorley/crop-planner/pkg/core/allocator"
	"github.com/jakechorley/crop-planner/pkg/core/metrics"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

var (
	field = model.Field{ID: "f1", Area: 100, DailyFixedCost: 10, FallowPeriodDays: 28}
	crop  = model.Crop{ID: "bean", AreaPerUnit: 1, RevenuePerArea: 50}
)

func candidate(start string, days int, quantity float64) model.AllocationCandidate {
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

func stateOf(allocations ...model.CropAllocation) *allocator.PlanState {
	return &allocator.PlanState{
		Solution:  model.NewSolution(allocations...),
		Evaluator: metrics.NewEvaluator(nil),
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "NonOverlap", NewNonOverlapCriterion().Name())
	assert.Equal(t, "AreaCapacity", NewAreaCapacityCriterion().Name())
	assert.Equal(t, "RevenueCap", NewRevenueCapCriterion().Name())
	assert.Len(t, Default(), 3)
}

func TestNonOverlapCriterion_IsCandidateValid(t *testing.T) {
	criterion := NewNonOverlapCriterion()
	state := stateOf(model.NewAllocation(candidate("2024-04-01", 91, 10))) // ends 2024-06-30

	assert.False(t, criterion.IsCandidateValid(state, candidate("2024-07-15", 30, 10)))
	assert.True(t, criterion.IsCandidateValid(state, candidate("2024-07-29", 30, 10)))

	other := candidate("2024-04-01", 30, 10)
	other.Field = model.Field{ID: "f2", Area: 100, FallowPeriodDays: 28}
	assert.True(t, criterion.IsCandidateValid(state, other))
}

func TestNonOverlapCriterion_ValidateSolution(t *testing.T) {
	criterion := NewNonOverlapCriterion()
	a := model.NewAllocation(candidate("2024-04-01", 91, 10))
	b := model.NewAllocation(candidate("2024-07-15", 30, 10))

	errors := criterion.ValidateSolution(stateOf(a, b))
	require.Len(t, errors, 1)
	assert.Equal(t, b.ID, errors[0].AllocationID)
	assert.Equal(t, "NonOverlap", errors[0].CriterionName)
	assert.Contains(t, errors[0].Description, "2024-07-28")

	assert.Empty(t, criterion.ValidateSolution(stateOf(a)))
}

func TestAreaCapacityCriterion_IsCandidateValid(t *testing.T) {
	criterion := NewAreaCapacityCriterion()
	state := stateOf(model.NewAllocation(candidate("2024-04-01", 30, 60)))

	assert.True(t, criterion.IsCandidateValid(state, candidate("2024-04-10", 10, 40)))
	assert.False(t, criterion.IsCandidateValid(state, candidate("2024-04-10", 10, 41)))
	assert.False(t, criterion.IsCandidateValid(stateOf(), candidate("2024-04-10", 10, 101)))
}

func TestAreaCapacityCriterion_ValidateSolution(t *testing.T) {
	criterion := NewAreaCapacityCriterion()
	a := model.NewAllocation(candidate("2024-04-01", 30, 60))
	b := model.NewAllocation(candidate("2024-04-10", 10, 60))

	errors := criterion.ValidateSolution(stateOf(a, b))
	require.Len(t, errors, 1)
	assert.Equal(t, b.ID, errors[0].AllocationID)

	tampered := model.NewAllocation(candidate("2024-04-01", 30, 10))
	tampered.AreaUsed = 5
	errors = criterion.ValidateSolution(stateOf(tampered))
	require.Len(t, errors, 1)
	assert.Contains(t, errors[0].Description, "does not match")
}

func TestRevenueCapCriterion(t *testing.T) {
	criterion := NewRevenueCapCriterion()
	capped := crop
	capped.MaxRevenue = testfixtures.Float(1000)

	first := candidate("2024-01-01", 30, 20) // 20 x 50 = 1000, exactly the cap
	first.Crop = capped
	state := stateOf(model.NewAllocation(first))

	second := candidate("2024-06-01", 30, 10)
	second.Crop = capped
	assert.False(t, criterion.IsCandidateValid(state, second))

	uncapped := candidate("2024-06-01", 30, 10)
	assert.True(t, criterion.IsCandidateValid(state, uncapped))

	// Hard clipping means a solution evaluated by the same evaluator never breaches the cap
	assert.Empty(t, criterion.ValidateSolution(stateOf(model.NewAllocation(first), model.NewAllocation(second))))
}

func TestRevenueCapCriterion_AllocationsDisagreeOnCap(t *testing.T) {
	criterion := NewRevenueCapCriterion()

	// The earlier allocation carries a stale, uncapped copy of the crop and realizes 1000
	stale := candidate("2024-01-01", 30, 20)
	capped := crop
	capped.MaxRevenue = testfixtures.Float(500)
	later := candidate("2024-06-01", 30, 10)
	later.Crop = capped

	errors := criterion.ValidateSolution(stateOf(model.NewAllocation(stale), model.NewAllocation(later)))
	require.Len(t, errors, 1)
	assert.Equal(t, crop.ID, errors[0].CropID)
	assert.Equal(t, "RevenueCap", errors[0].CriterionName)
	assert.Contains(t, errors[0].Description, "exceeds cap 500.00")
}
