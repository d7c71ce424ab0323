package criteria

import (
	"fmt"
	"slices"

	"github.com/jakechorley/crop-planner/pkg/core/allocator"
	"github.com/jakechorley/crop-planner/pkg/core/feasibility"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// NonOverlapCriterion keeps every field's allocations apart, fallow included.
//
// Validity:
//   - Returns false if the candidate's cultivation window, or the fallow period after
//     it, touches another allocation on the same field
//   - Allocations on other fields are ignored
//
// Validation:
//   - Reports each pair of allocations on a field where the earlier one's completion
//     plus the field's fallow period does not fall strictly before the later one starts
type NonOverlapCriterion struct{}

// NewNonOverlapCriterion creates a new NonOverlapCriterion
func NewNonOverlapCriterion() *NonOverlapCriterion {
	return &NonOverlapCriterion{}
}

func (c *NonOverlapCriterion) Name() string {
	return "NonOverlap"
}

func (c *NonOverlapCriterion) IsCandidateValid(state *allocator.PlanState, candidate model.AllocationCandidate) bool {
	for _, a := range state.Solution.OnField(candidate.Field.ID) {
		if feasibility.OverlapsWithFallow(a.AllocationCandidate, candidate) {
			return false
		}
	}
	return true
}

func (c *NonOverlapCriterion) ValidateSolution(state *allocator.PlanState) []allocator.ValidationError {
	var errors []allocator.ValidationError

	for _, fieldID := range state.Solution.FieldIDs() {
		onField := state.Solution.OnField(fieldID)
		slices.SortFunc(onField, model.CompareByStart)

		for i, a := range onField {
			for _, b := range onField[i+1:] {
				if !feasibility.OverlapsWithFallow(a.AllocationCandidate, b.AllocationCandidate) {
					continue
				}
				errors = append(errors, allocator.ValidationError{
					AllocationID:  b.ID,
					FieldID:       fieldID,
					CropID:        b.Crop.ID,
					CriterionName: c.Name(),
					Description: fmt.Sprintf("Starts %s but allocation %s occupies the field until %s (fallow included)",
						b.StartDate.Format(model.DateLayout), a.ID, a.FallowEnd().Format(model.DateLayout)),
				})
			}
		}
	}

	return errors
}
