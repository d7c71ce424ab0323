package feasibility

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/jakechorley/crop-planner/pkg/core/model"
)

var (
	// ErrFallowOverlap means the candidate starts before another allocation's fallow
	// period on the same field has ended, or vice versa
	ErrFallowOverlap = errors.New("overlaps another allocation including fallow period")

	// ErrAreaExceeded means concurrent allocations would need more than the field's area
	ErrAreaExceeded = errors.New("exceeds field area")

	// ErrInvalidQuantity means the quantity is not positive or does not fit on the field
	ErrInvalidQuantity = errors.New("invalid quantity")
)

const areaTolerance = 1e-9

// OverlapsWithFallow reports whether two allocations on the same field conflict.
// They are compatible only when one completes, rests for its fallow period, and the
// other starts strictly afterwards.
func OverlapsWithFallow(a, b model.AllocationCandidate) bool {
	if a.Field.ID != b.Field.ID {
		return false
	}
	aFirst := a.FallowEnd().Before(b.StartDate)
	bFirst := b.FallowEnd().Before(a.StartDate)
	return !aFirst && !bFirst
}

// FitsArea reports whether adding the candidate keeps the peak concurrent area on its
// field within the field's area
func FitsArea(c model.AllocationCandidate, schedule []model.CropAllocation) bool {
	if c.AreaUsed > c.Field.Area+areaTolerance {
		return false
	}

	type event struct {
		day   time.Time
		delta float64
	}
	events := []event{
		{day: c.StartDate, delta: c.AreaUsed},
		{day: c.CompletionDate.AddDate(0, 0, 1), delta: -c.AreaUsed},
	}
	for _, a := range schedule {
		if a.Field.ID != c.Field.ID || !a.Intersects(c) {
			continue
		}
		events = append(events,
			event{day: a.StartDate, delta: a.AreaUsed},
			event{day: a.CompletionDate.AddDate(0, 0, 1), delta: -a.AreaUsed},
		)
	}

	// Releases sort before claims on the same day
	sort.Slice(events, func(i, j int) bool {
		if !events[i].day.Equal(events[j].day) {
			return events[i].day.Before(events[j].day)
		}
		return events[i].delta < events[j].delta
	})

	used := 0.0
	for _, e := range events {
		used += e.delta
		if used > c.Field.Area+areaTolerance {
			return false
		}
	}
	return true
}

// CanPlace checks whether the candidate can join the solution. Allocations whose IDs are
// listed in ignoreIDs are treated as already removed, which lets move operators test a
// relocation before committing it.
func CanPlace(solution model.Solution, c model.AllocationCandidate, ignoreIDs ...string) error {
	if c.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %g must be positive", ErrInvalidQuantity, c.Quantity)
	}
	if c.AreaUsed > c.Field.Area+areaTolerance {
		return fmt.Errorf("%w: needs %g of %g on field %s", ErrInvalidQuantity, c.AreaUsed, c.Field.Area, c.Field.ID)
	}

	var others []model.CropAllocation
	for _, a := range solution.OnField(c.Field.ID) {
		if slices.Contains(ignoreIDs, a.ID) {
			continue
		}
		if OverlapsWithFallow(a.AllocationCandidate, c) {
			return fmt.Errorf("%w: %s on field %s (%s to %s, fallow until %s)",
				ErrFallowOverlap, a.Crop.ID, c.Field.ID,
				a.StartDate.Format(model.DateLayout),
				a.CompletionDate.Format(model.DateLayout),
				a.FallowEnd().Format(model.DateLayout))
		}
		others = append(others, a)
	}

	if !FitsArea(c, others) {
		return fmt.Errorf("%w: field %s", ErrAreaExceeded, c.Field.ID)
	}
	return nil
}

// IsFeasible is CanPlace as a predicate
func IsFeasible(solution model.Solution, c model.AllocationCandidate, ignoreIDs ...string) bool {
	return CanPlace(solution, c, ignoreIDs...) == nil
}

// FieldSchedule is the time-ordered list of allocations on one field
type FieldSchedule struct {
	Field       model.Field
	Allocations []model.CropAllocation
}

// NewFieldSchedule builds a schedule and fails fast if any pair of allocations conflicts
func NewFieldSchedule(field model.Field, allocations []model.CropAllocation) (*FieldSchedule, error) {
	sorted := slices.Clone(allocations)
	slices.SortFunc(sorted, model.CompareByStart)

	for i, a := range sorted {
		if a.Field.ID != field.ID {
			return nil, fmt.Errorf("allocation %s belongs to field %s, not %s", a.ID, a.Field.ID, field.ID)
		}
		if a.Quantity <= 0 || a.AreaUsed > field.Area+areaTolerance {
			return nil, fmt.Errorf("allocation %s: %w", a.ID, ErrInvalidQuantity)
		}
		if i > 0 {
			prev := sorted[i-1]
			if OverlapsWithFallow(prev.AllocationCandidate, a.AllocationCandidate) {
				return nil, fmt.Errorf("allocations %s and %s on field %s: %w", prev.ID, a.ID, field.ID, ErrFallowOverlap)
			}
		}
	}

	return &FieldSchedule{Field: field, Allocations: sorted}, nil
}

// Previous returns the allocation that completed most recently before the given date
func (s *FieldSchedule) Previous(before time.Time) (model.CropAllocation, bool) {
	for i := len(s.Allocations) - 1; i >= 0; i-- {
		if s.Allocations[i].CompletionDate.Before(before) {
			return s.Allocations[i], true
		}
	}
	return model.CropAllocation{}, false
}

// FreeDays counts the days in [start, end] that are not covered by a cultivation or
// fallow period
func (s *FieldSchedule) FreeDays(start, end time.Time) int {
	free := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		busy := false
		for _, a := range s.Allocations {
			if !d.Before(a.StartDate) && !d.After(a.FallowEnd()) {
				busy = true
				break
			}
		}
		if !busy {
			free++
		}
	}
	return free
}

// Schedules groups a solution by field, failing on the first field that violates an
// invariant
func Schedules(solution model.Solution) (map[string]*FieldSchedule, error) {
	byField := make(map[string][]model.CropAllocation)
	fields := make(map[string]model.Field)
	for _, a := range solution.Allocations {
		byField[a.Field.ID] = append(byField[a.Field.ID], a)
		fields[a.Field.ID] = a.Field
	}

	out := make(map[string]*FieldSchedule, len(byField))
	for _, id := range solution.FieldIDs() {
		schedule, err := NewFieldSchedule(fields[id], byField[id])
		if err != nil {
			return nil, err
		}
		out[id] = schedule
	}
	return out, nil
}

// Validate checks every allocation pair in the solution and reports all violations
func Validate(solution model.Solution) error {
	var errs []error
	seen := make(map[string]bool, solution.Len())

	for _, fieldID := range solution.FieldIDs() {
		allocations := solution.OnField(fieldID)
		slices.SortFunc(allocations, model.CompareByStart)

		for i, a := range allocations {
			if seen[a.ID] {
				errs = append(errs, fmt.Errorf("duplicate allocation id %s", a.ID))
			}
			seen[a.ID] = true

			if a.Quantity <= 0 || a.AreaUsed > a.Field.Area+areaTolerance {
				errs = append(errs, fmt.Errorf("allocation %s: %w", a.ID, ErrInvalidQuantity))
			}
			for _, b := range allocations[i+1:] {
				if OverlapsWithFallow(a.AllocationCandidate, b.AllocationCandidate) {
					errs = append(errs, fmt.Errorf("allocations %s and %s on field %s: %w", a.ID, b.ID, fieldID, ErrFallowOverlap))
				}
			}
		}
	}

	return errors.Join(errs...)
}
