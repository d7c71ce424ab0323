package alns

import (
	"cmp"
	"errors"
	"math"
	"slices"

	"github.com/jakechorley/crop-planner/pkg/core/model"
	"github.com/jakechorley/crop-planner/pkg/core/thermal"
)

// ErrNotApplicable is returned by an operator that cannot act on the current solution
var ErrNotApplicable = errors.New("operator not applicable")

// DestroyOperator removes part of a solution
type DestroyOperator int

const (
	// RandomRemoval drops a random fraction of allocations
	RandomRemoval DestroyOperator = iota
	// WorstRemoval drops the allocations with the lowest profit rate
	WorstRemoval
	// RelatedRemoval drops allocations sharing a field or crop group with a random seed allocation
	RelatedRemoval
	// FieldRemoval empties one field
	FieldRemoval
	// TimeSliceRemoval drops everything overlapping a random date window
	TimeSliceRemoval
)

// DestroyOperators lists every destroy operator
var DestroyOperators = []DestroyOperator{RandomRemoval, WorstRemoval, RelatedRemoval, FieldRemoval, TimeSliceRemoval}

func (o DestroyOperator) String() string {
	switch o {
	case RandomRemoval:
		return "random_removal"
	case WorstRemoval:
		return "worst_removal"
	case RelatedRemoval:
		return "related_removal"
	case FieldRemoval:
		return "field_removal"
	case TimeSliceRemoval:
		return "time_slice_removal"
	default:
		return "unknown"
	}
}

func (e *Engine) destroy(op DestroyOperator, current model.Solution) (model.Solution, []model.CropAllocation, error) {
	if current.IsEmpty() {
		return current, nil, ErrNotApplicable
	}

	var removed []model.CropAllocation
	switch op {
	case RandomRemoval:
		removed = e.randomRemoval(current)
	case WorstRemoval:
		removed = e.worstRemoval(current)
	case RelatedRemoval:
		removed = e.relatedRemoval(current)
	case FieldRemoval:
		removed = e.fieldRemoval(current)
	case TimeSliceRemoval:
		removed = e.timeSliceRemoval(current)
	}
	if len(removed) == 0 {
		return current, nil, ErrNotApplicable
	}

	ids := make([]string, len(removed))
	for i, a := range removed {
		ids[i] = a.ID
	}
	return current.Without(ids...), removed, nil
}

// removalCount is the number of allocations the fraction-based operators remove
func (e *Engine) removalCount(n int) int {
	k := int(math.Round(e.cfg.DestroyFraction * float64(n)))
	return max(1, min(k, n))
}

func (e *Engine) randomRemoval(current model.Solution) []model.CropAllocation {
	allocs := current.SortedByStart()
	e.rng.Shuffle(len(allocs), func(i, j int) {
		allocs[i], allocs[j] = allocs[j], allocs[i]
	})
	return allocs[:e.removalCount(len(allocs))]
}

func (e *Engine) worstRemoval(current model.Solution) []model.CropAllocation {
	byAllocation := e.evaluator.EvaluateSolution(current).ByAllocation
	allocs := current.SortedByStart()
	slices.SortStableFunc(allocs, func(a, b model.CropAllocation) int {
		return cmp.Compare(byAllocation[a.ID].ProfitRate, byAllocation[b.ID].ProfitRate)
	})
	return allocs[:e.removalCount(len(allocs))]
}

func (e *Engine) relatedRemoval(current model.Solution) []model.CropAllocation {
	allocs := current.SortedByStart()
	seed := allocs[e.rng.Intn(len(allocs))]

	var related []model.CropAllocation
	for _, a := range allocs {
		if a.ID == seed.ID || a.Field.ID == seed.Field.ID || a.Crop.SharesGroup(seed.Crop) || a.Crop.ID == seed.Crop.ID {
			related = append(related, a)
		}
	}

	// Keep the ones closest in time to the seed
	distance := func(a model.CropAllocation) int {
		d := thermal.DaysBetween(seed.StartDate, a.StartDate)
		if d < 0 {
			return -d
		}
		return d
	}
	slices.SortStableFunc(related, func(a, b model.CropAllocation) int {
		return cmp.Compare(distance(a), distance(b))
	})

	k := e.removalCount(len(allocs))
	if len(related) > k {
		related = related[:k]
	}
	return related
}

func (e *Engine) fieldRemoval(current model.Solution) []model.CropAllocation {
	fieldIDs := current.FieldIDs()
	return current.OnField(fieldIDs[e.rng.Intn(len(fieldIDs))])
}

func (e *Engine) timeSliceRemoval(current model.Solution) []model.CropAllocation {
	span := thermal.DaysBetween(e.problem.PlanningStart, e.problem.PlanningEnd) + 1
	length := min(e.cfg.TimeSliceDays, span)
	offset := 0
	if span > length {
		offset = e.rng.Intn(span - length + 1)
	}
	window := model.AllocationCandidate{
		StartDate:      e.problem.PlanningStart.AddDate(0, 0, offset),
		CompletionDate: e.problem.PlanningStart.AddDate(0, 0, offset+length-1),
	}

	var removed []model.CropAllocation
	for _, a := range current.SortedByStart() {
		if a.Intersects(window) {
			removed = append(removed, a)
		}
	}
	return removed
}
