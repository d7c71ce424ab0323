package allocator

import (
	"fmt"

	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// ValidationError represents a constraint violation found in a finished solution
type ValidationError struct {
	AllocationID  string
	FieldID       string
	CropID        string
	CriterionName string
	Description   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: allocation %s (field %s, crop %s): %s",
		e.CriterionName, e.AllocationID, e.FieldID, e.CropID, e.Description)
}

// Criterion defines a hard constraint on crop allocations.
// Criteria act both while a solution is built and when it is validated.
type Criterion interface {
	// Name returns a human-readable identifier for this criterion
	Name() string

	// IsCandidateValid determines if the candidate may join the state's solution.
	// Returns false if adding it would violate a hard constraint.
	// This acts as a veto - if ANY criterion returns false, the candidate is skipped.
	IsCandidateValid(state *PlanState, candidate model.AllocationCandidate) bool

	// ValidateSolution checks the finished solution against this criterion.
	// Returns a slice of validation errors (empty if all valid).
	ValidateSolution(state *PlanState) []ValidationError
}
