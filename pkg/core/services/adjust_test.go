package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/crop-planner/internal/config"
	"github.com/jakechorley/crop-planner/internal/testfixtures"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// spinachOnEast is a 40 day spinach crop (400 GDD at 10 GDD per day) on the east field
func spinachOnEast(problem *model.Problem) model.CropAllocation {
	east, _ := problem.FieldByID("east")
	spinach, _ := problem.CropByID("spinach")
	c := model.AllocationCandidate{
		Field:          east,
		Crop:           spinach,
		StartDate:      testfixtures.Date("2024-03-04"),
		CompletionDate: testfixtures.Date("2024-04-12"),
		GrowthDays:     40,
		AccumulatedGDD: 400,
		YieldFactor:    1,
	}.WithQuantity(100)
	return model.CropAllocation{ID: "spinach-1", AllocationCandidate: c}
}

func datePtr(s string) *time.Time {
	d := testfixtures.Date(s)
	return &d
}

func TestAdjust_MoveResimulatesGrowthAndKeepsID(t *testing.T) {
	problem := testfixtures.SampleProblem()
	solution := model.NewSolution(spinachOnEast(problem))

	result, err := Adjust(context.Background(), problem, solution, []model.MoveInstruction{
		{AllocationID: "spinach-1", Action: model.MoveActionMove, ToFieldID: "north", ToStartDate: datePtr("2024-05-06")},
	}, optimizerConfig(config.AlgorithmGreedy), zap.NewNop())
	require.NoError(t, err)

	require.Len(t, result.Applied, 1)
	assert.Empty(t, result.Rejected)

	moved, ok := result.Plan.Solution.Find("spinach-1")
	require.True(t, ok)
	assert.Equal(t, "north", moved.Field.ID)
	assert.Equal(t, testfixtures.Date("2024-05-06"), moved.StartDate)
	assert.Equal(t, testfixtures.Date("2024-06-14"), moved.CompletionDate)
	assert.Equal(t, 40, moved.GrowthDays)
	assert.Equal(t, 100.0, moved.Quantity)

	// Fill used the rest of the year
	assert.Positive(t, result.Filled)
	assert.Equal(t, result.Filled+1, result.Plan.Solution.Len())
	assert.Equal(t, AlgorithmAdjust, result.Plan.Algorithm)
	assertValidPlan(t, result.Plan)

	// The input is untouched
	original, _ := solution.Find("spinach-1")
	assert.Equal(t, "east", original.Field.ID)
}

func TestAdjust_RemoveDoesNotRefillSameSlot(t *testing.T) {
	problem := testfixtures.SampleProblem()
	removed := spinachOnEast(problem)
	solution := model.NewSolution(removed)

	result, err := Adjust(context.Background(), problem, solution, []model.MoveInstruction{
		{AllocationID: "spinach-1", Action: model.MoveActionRemove},
	}, optimizerConfig(config.AlgorithmGreedy), zap.NewNop())
	require.NoError(t, err)

	require.Len(t, result.Applied, 1)
	_, ok := result.Plan.Solution.Find("spinach-1")
	assert.False(t, ok)
	assert.False(t, result.Plan.Solution.UsedKeys()[removed.Key()])
}

func TestAdjust_RejectsInvalidInstructions(t *testing.T) {
	problem := testfixtures.SampleProblem()
	solution := model.NewSolution(spinachOnEast(problem))

	moves := []model.MoveInstruction{
		{AllocationID: "missing", Action: model.MoveActionRemove},
		{AllocationID: "spinach-1", Action: model.MoveActionMove, ToFieldID: "west"},
		{AllocationID: "spinach-1", Action: model.MoveActionMove, ToStartDate: datePtr("2025-01-06")},
		// Sown too late to mature before the end of the year
		{AllocationID: "spinach-1", Action: model.MoveActionMove, ToStartDate: datePtr("2024-12-02")},
	}

	result, err := Adjust(context.Background(), problem, solution, moves, optimizerConfig(config.AlgorithmGreedy), zap.NewNop())
	require.NoError(t, err)

	assert.Empty(t, result.Applied)
	require.Len(t, result.Rejected, 4)
	assert.Contains(t, result.Rejected[0].Reason, "not found")
	assert.Contains(t, result.Rejected[1].Reason, "unknown field")
	assert.Contains(t, result.Rejected[2].Reason, "outside the planning horizon")
	assert.Contains(t, result.Rejected[3].Reason, "does not complete")
	assert.Equal(t, "missing", result.Rejected[0].Instruction.AllocationID)

	kept, ok := result.Plan.Solution.Find("spinach-1")
	require.True(t, ok)
	assert.Equal(t, "east", kept.Field.ID)
}

func TestAdjust_RejectsOverlappingMove(t *testing.T) {
	problem := testfixtures.SampleProblem()
	first := spinachOnEast(problem)
	second := spinachOnEast(problem)
	second.ID = "spinach-2"
	second.AllocationCandidate.StartDate = testfixtures.Date("2024-06-03")
	second.AllocationCandidate.CompletionDate = testfixtures.Date("2024-07-12")
	solution := model.NewSolution(first, second)

	// Inside the first crop's 14 day fallow
	result, err := Adjust(context.Background(), problem, solution, []model.MoveInstruction{
		{AllocationID: "spinach-2", Action: model.MoveActionMove, ToStartDate: datePtr("2024-04-20")},
	}, optimizerConfig(config.AlgorithmGreedy), zap.NewNop())
	require.NoError(t, err)

	require.Len(t, result.Rejected, 1)
	assert.Contains(t, result.Rejected[0].Reason, "overlaps")
}

func TestAdjust_RemovalBlockedByTarget(t *testing.T) {
	problem := testfixtures.SampleProblem()
	problem.CropTargets = []model.CropTarget{{CropID: "spinach", MinQuantity: 100}}
	solution := model.NewSolution(spinachOnEast(problem))

	result, err := Adjust(context.Background(), problem, solution, []model.MoveInstruction{
		{AllocationID: "spinach-1", Action: model.MoveActionRemove},
	}, optimizerConfig(config.AlgorithmGreedy), zap.NewNop())
	require.NoError(t, err)

	require.Len(t, result.Rejected, 1)
	assert.Contains(t, result.Rejected[0].Reason, "minimum quantity")
}

func TestAdjust_InvalidInputPlan(t *testing.T) {
	problem := testfixtures.SampleProblem()
	a := spinachOnEast(problem)
	b := spinachOnEast(problem)
	b.ID = "spinach-2"

	_, err := Adjust(context.Background(), problem, model.NewSolution(a, b), nil, optimizerConfig(config.AlgorithmGreedy), zap.NewNop())
	assert.ErrorContains(t, err, "plan to adjust is invalid")
}
