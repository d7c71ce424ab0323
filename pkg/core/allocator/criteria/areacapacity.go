package criteria

import (
	"fmt"

	"github.com/jakechorley/crop-planner/pkg/core/allocator"
	"github.com/jakechorley/crop-planner/pkg/core/feasibility"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// AreaCapacityCriterion prevents overfilling of fields.
//
// Validity:
//   - Returns false if the candidate's area, added to every allocation on the field that
//     shares a day with it, would exceed the field's area at any instant
//
// Validation:
//   - Reports allocations whose quantity is not positive or whose area alone does not fit
//   - Reports allocations that push the field's concurrent area over capacity
type AreaCapacityCriterion struct{}

// NewAreaCapacityCriterion creates a new AreaCapacityCriterion
func NewAreaCapacityCriterion() *AreaCapacityCriterion {
	return &AreaCapacityCriterion{}
}

func (c *AreaCapacityCriterion) Name() string {
	return "AreaCapacity"
}

func (c *AreaCapacityCriterion) IsCandidateValid(state *allocator.PlanState, candidate model.AllocationCandidate) bool {
	return feasibility.FitsArea(candidate, state.Solution.OnField(candidate.Field.ID))
}

func (c *AreaCapacityCriterion) ValidateSolution(state *allocator.PlanState) []allocator.ValidationError {
	var errors []allocator.ValidationError

	for _, fieldID := range state.Solution.FieldIDs() {
		onField := state.Solution.OnField(fieldID)

		for i, a := range onField {
			expected := a.Quantity * a.Crop.AreaPerUnit
			if a.AreaUsed > expected+1e-9 || a.AreaUsed < expected-1e-9 {
				errors = append(errors, c.violation(a, fmt.Sprintf("Area used %g does not match quantity %g x %g per unit",
					a.AreaUsed, a.Quantity, a.Crop.AreaPerUnit)))
			}

			// Check against the allocations before it so each conflict is reported once
			if !feasibility.FitsArea(a.AllocationCandidate, onField[:i]) {
				errors = append(errors, c.violation(a, fmt.Sprintf("Concurrent area exceeds field area %g", a.Field.Area)))
			}
		}
	}

	return errors
}

func (c *AreaCapacityCriterion) violation(a model.CropAllocation, description string) allocator.ValidationError {
	return allocator.ValidationError{
		AllocationID:  a.ID,
		FieldID:       a.Field.ID,
		CropID:        a.Crop.ID,
		CriterionName: c.Name(),
		Description:   description,
	}
}
