package localsearch

import (
	"fmt"
	"math"

	"github.com/jakechorley/crop-planner/pkg/core/feasibility"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// Operator is a neighborhood move family
type Operator int

const (
	// FieldSwap exchanges the fields of two allocations
	FieldSwap Operator = iota
	// FieldMove relocates an allocation to another field
	FieldMove
	// FieldReplace swaps an allocation for an unused candidate on the same field
	FieldReplace
	// FieldRemove drops an allocation
	FieldRemove
	// CropInsert adds an unused candidate
	CropInsert
	// CropChange plants a different crop in roughly the same slot
	CropChange
	// PeriodReplace moves an allocation to another ranked growth window
	PeriodReplace
	// QuantityAdjust scales an allocation's quantity by -20%, -10%, +10% or +20%
	QuantityAdjust
)

// AllOperators lists every operator in evaluation order
var AllOperators = []Operator{
	FieldSwap, FieldMove, FieldReplace, FieldRemove,
	CropInsert, CropChange, PeriodReplace, QuantityAdjust,
}

func (o Operator) String() string {
	switch o {
	case FieldSwap:
		return "field_swap"
	case FieldMove:
		return "field_move"
	case FieldReplace:
		return "field_replace"
	case FieldRemove:
		return "field_remove"
	case CropInsert:
		return "crop_insert"
	case CropChange:
		return "crop_change"
	case PeriodReplace:
		return "period_replace"
	case QuantityAdjust:
		return "quantity_adjust"
	default:
		return "unknown"
	}
}

// ParseOperator resolves an operator from its String form
func ParseOperator(name string) (Operator, error) {
	for _, op := range AllOperators {
		if op.String() == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown local search operator %q", name)
}

var quantitySteps = []float64{-0.2, -0.1, 0.1, 0.2}

type neighbor struct {
	op       Operator
	solution model.Solution
}

// moved keeps the allocation's identity while swapping in a new candidate
func moved(a model.CropAllocation, c model.AllocationCandidate) model.CropAllocation {
	return model.CropAllocation{ID: a.ID, AllocationCandidate: c}
}

func (s *Searcher) generate(op Operator, current model.Solution) []model.Solution {
	switch op {
	case FieldSwap:
		return s.fieldSwap(current)
	case FieldMove:
		return s.fieldMove(current)
	case FieldReplace:
		return s.fieldReplace(current)
	case FieldRemove:
		return s.fieldRemove(current)
	case CropInsert:
		return s.cropInsert(current)
	case CropChange:
		return s.cropChange(current)
	case PeriodReplace:
		return s.periodReplace(current)
	case QuantityAdjust:
		return s.quantityAdjust(current)
	default:
		return nil
	}
}

func (s *Searcher) fieldSwap(current model.Solution) []model.Solution {
	var out []model.Solution
	allocs := current.Allocations
	for i, a := range allocs {
		for _, b := range allocs[i+1:] {
			if a.Field.ID == b.Field.ID {
				continue
			}
			ca, ok := s.pool.Closest(b.Field.ID, a.Crop.ID, a.StartDate, a.QuantityLevel)
			if !ok {
				continue
			}
			cb, ok := s.pool.Closest(a.Field.ID, b.Crop.ID, b.StartDate, b.QuantityLevel)
			if !ok {
				continue
			}

			base := current.Without(a.ID, b.ID)
			if feasibility.CanPlace(base, ca) != nil {
				continue
			}
			base = base.With(moved(a, ca))
			if feasibility.CanPlace(base, cb) != nil {
				continue
			}
			out = append(out, base.With(moved(b, cb)))
		}
	}
	return out
}

func (s *Searcher) fieldMove(current model.Solution) []model.Solution {
	var out []model.Solution
	for _, a := range current.Allocations {
		for _, f := range s.problem.Fields {
			if f.ID == a.Field.ID {
				continue
			}
			c, ok := s.pool.Closest(f.ID, a.Crop.ID, a.StartDate, a.QuantityLevel)
			if !ok || feasibility.CanPlace(current, c, a.ID) != nil {
				continue
			}
			out = append(out, current.Replace(a.ID, moved(a, c)))
		}
	}
	return out
}

func (s *Searcher) fieldReplace(current model.Solution) []model.Solution {
	var out []model.Solution
	used := current.UsedKeys()
	for _, a := range current.Allocations {
		for _, c := range s.pool.ForField(a.Field.ID) {
			if used[c.Key()] || feasibility.CanPlace(current, c, a.ID) != nil {
				continue
			}
			out = append(out, current.Replace(a.ID, moved(a, c)))
		}
	}
	return out
}

func (s *Searcher) fieldRemove(current model.Solution) []model.Solution {
	out := make([]model.Solution, 0, current.Len())
	for _, a := range current.Allocations {
		out = append(out, current.Without(a.ID))
	}
	return out
}

func (s *Searcher) cropInsert(current model.Solution) []model.Solution {
	var out []model.Solution
	for _, c := range s.pool.Unused(current) {
		if feasibility.CanPlace(current, c) != nil {
			continue
		}
		out = append(out, current.With(model.NewAllocation(c)))
	}
	return out
}

func (s *Searcher) cropChange(current model.Solution) []model.Solution {
	var out []model.Solution
	for _, a := range current.Allocations {
		for _, crop := range s.problem.Crops {
			if crop.ID == a.Crop.ID {
				continue
			}
			c, ok := s.pool.Closest(a.Field.ID, crop.ID, a.StartDate, a.QuantityLevel)
			if !ok || feasibility.CanPlace(current, c, a.ID) != nil {
				continue
			}
			out = append(out, current.Replace(a.ID, moved(a, c)))
		}
	}
	return out
}

func (s *Searcher) periodReplace(current model.Solution) []model.Solution {
	var out []model.Solution
	for _, a := range current.Allocations {
		for _, alt := range otherWindows(a, s.pool.Alternatives(a.AllocationCandidate)) {
			if feasibility.CanPlace(current, alt, a.ID) != nil {
				continue
			}
			out = append(out, current.Replace(a.ID, moved(a, alt)))
		}
	}
	return out
}

// otherWindows keeps, for each start date other than a's, the alternative whose
// quantity level is nearest to a's. Adjusted quantities rarely sit on a pool level.
func otherWindows(a model.CropAllocation, alts []model.AllocationCandidate) []model.AllocationCandidate {
	best := make(map[string]int)
	var out []model.AllocationCandidate
	for _, alt := range alts {
		if alt.StartDate.Equal(a.StartDate) {
			continue
		}
		key := alt.StartDate.Format(model.DateLayout)
		i, ok := best[key]
		if !ok {
			best[key] = len(out)
			out = append(out, alt)
			continue
		}
		if math.Abs(alt.QuantityLevel-a.QuantityLevel) < math.Abs(out[i].QuantityLevel-a.QuantityLevel) {
			out[i] = alt
		}
	}
	return out
}

func (s *Searcher) quantityAdjust(current model.Solution) []model.Solution {
	var out []model.Solution
	for _, a := range current.Allocations {
		for _, step := range quantitySteps {
			q := math.Floor(a.Quantity*(1+step) + 1e-9)
			if q <= 0 || q == a.Quantity {
				continue
			}
			c := a.WithQuantity(q)
			if feasibility.CanPlace(current, c, a.ID) != nil {
				continue
			}
			out = append(out, current.Replace(a.ID, moved(a, c)))
		}
	}
	return out
}
