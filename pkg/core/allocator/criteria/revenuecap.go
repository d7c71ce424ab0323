package criteria

import (
	"fmt"
	"sort"

	"github.com/jakechorley/crop-planner/pkg/core/allocator"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// revenueTolerance absorbs float error when summing many allocations
const revenueTolerance = 1e-6

// RevenueCapCriterion enforces each crop's market cap on cumulative revenue.
//
// Validity:
//   - Returns false once the crop's cap is fully consumed, since a further allocation
//     would realize no revenue while still incurring cost
//   - Uncapped crops are always valid
//
// Validation:
//   - Re-evaluates the whole solution in start order and reports any crop whose realized
//     revenue exceeds the smallest MaxRevenue its allocations carry
//   - The evaluator clips each allocation by its own crop's cap, so this only trips when
//     allocations of one crop disagree about the cap (a plan assembled from stale crop
//     data). It is an assertion on the input, not on the evaluator.
type RevenueCapCriterion struct{}

// NewRevenueCapCriterion creates a new RevenueCapCriterion
func NewRevenueCapCriterion() *RevenueCapCriterion {
	return &RevenueCapCriterion{}
}

func (c *RevenueCapCriterion) Name() string {
	return "RevenueCap"
}

func (c *RevenueCapCriterion) IsCandidateValid(state *allocator.PlanState, candidate model.AllocationCandidate) bool {
	if candidate.Crop.MaxRevenue == nil {
		return true
	}
	res := state.Evaluator.Evaluate(candidate, state.Solution.Allocations)
	return res.Revenue > 0 || res.GrossRevenue == 0
}

func (c *RevenueCapCriterion) ValidateSolution(state *allocator.PlanState) []allocator.ValidationError {
	var errors []allocator.ValidationError

	solutionMetrics := state.Evaluator.EvaluateSolution(state.Solution)

	caps := make(map[string]float64)
	for _, a := range state.Solution.Allocations {
		if a.Crop.MaxRevenue == nil {
			continue
		}
		if limit, ok := caps[a.Crop.ID]; !ok || *a.Crop.MaxRevenue < limit {
			caps[a.Crop.ID] = *a.Crop.MaxRevenue
		}
	}

	cropIDs := make([]string, 0, len(caps))
	for id := range caps {
		cropIDs = append(cropIDs, id)
	}
	sort.Strings(cropIDs)

	for _, cropID := range cropIDs {
		realized := solutionMetrics.RevenueByCrop[cropID]
		if realized > caps[cropID]+revenueTolerance {
			errors = append(errors, allocator.ValidationError{
				CropID:        cropID,
				CriterionName: c.Name(),
				Description:   fmt.Sprintf("Realized revenue %.2f exceeds cap %.2f", realized, caps[cropID]),
			})
		}
	}

	return errors
}
