package allocator

import (
	"errors"
	"fmt"
)

// ValidateSolution validates the final plan state against core invariants and all
// provided criteria. An empty slice indicates the solution is valid.
func ValidateSolution(state *PlanState, criteria []Criterion) []ValidationError {
	errs := validateCoreInvariants(state)

	for _, criterion := range criteria {
		errs = append(errs, criterion.ValidateSolution(state)...)
	}

	return errs
}

// validateCoreInvariants checks properties every solution must have regardless of the
// configured criteria
func validateCoreInvariants(state *PlanState) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)

	for _, a := range state.Solution.Allocations {
		if a.ID == "" {
			errs = append(errs, coreError(a.Field.ID, a.Crop.ID, "", "allocation has no id"))
		} else if seen[a.ID] {
			errs = append(errs, coreError(a.Field.ID, a.Crop.ID, a.ID, "allocation id is used more than once"))
		}
		seen[a.ID] = true

		if a.Quantity <= 0 {
			errs = append(errs, coreError(a.Field.ID, a.Crop.ID, a.ID,
				fmt.Sprintf("quantity %g must be positive", a.Quantity)))
		}
		if a.CompletionDate.Before(a.StartDate) {
			errs = append(errs, coreError(a.Field.ID, a.Crop.ID, a.ID, "completes before it starts"))
		}
	}

	return errs
}

func coreError(fieldID, cropID, allocationID, description string) ValidationError {
	return ValidationError{
		AllocationID:  allocationID,
		FieldID:       fieldID,
		CropID:        cropID,
		CriterionName: "CoreInvariant",
		Description:   description,
	}
}

// AsError joins validation errors into a single error (nil when there are none)
func AsError(validationErrors []ValidationError) error {
	errs := make([]error, len(validationErrors))
	for i, v := range validationErrors {
		errs[i] = v
	}
	return errors.Join(errs...)
}
