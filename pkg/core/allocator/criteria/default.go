package criteria

import "github.com/jakechorley/crop-planner/pkg/core/allocator"

// Default returns the criteria every plan is built and validated with
func Default() []allocator.Criterion {
	return []allocator.Criterion{
		NewNonOverlapCriterion(),
		NewAreaCapacityCriterion(),
		NewRevenueCapCriterion(),
	}
}
