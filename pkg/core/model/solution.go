package model

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// CropAllocation is a candidate committed to a solution.
// Allocations are never mutated: operators replace them with new values.
type CropAllocation struct {
	ID string
	AllocationCandidate
}

// NewAllocation commits a candidate under a fresh allocation ID
func NewAllocation(candidate AllocationCandidate) CropAllocation {
	return CropAllocation{
		ID:                  uuid.NewString(),
		AllocationCandidate: candidate,
	}
}

// Solution is a set of crop allocations. Every method that changes the set returns a
// new Solution and leaves the receiver untouched.
type Solution struct {
	Allocations []CropAllocation
}

// NewSolution builds a solution from allocations, copying the slice
func NewSolution(allocations ...CropAllocation) Solution {
	return Solution{Allocations: slices.Clone(allocations)}
}

// Len returns the number of allocations
func (s Solution) Len() int {
	return len(s.Allocations)
}

// IsEmpty reports whether the solution has no allocations
func (s Solution) IsEmpty() bool {
	return len(s.Allocations) == 0
}

// Clone returns an independent copy
func (s Solution) Clone() Solution {
	return Solution{Allocations: slices.Clone(s.Allocations)}
}

// With returns a new solution containing the extra allocations
func (s Solution) With(allocations ...CropAllocation) Solution {
	out := make([]CropAllocation, 0, len(s.Allocations)+len(allocations))
	out = append(out, s.Allocations...)
	out = append(out, allocations...)
	return Solution{Allocations: out}
}

// Without returns a new solution with the given allocation IDs removed
func (s Solution) Without(ids ...string) Solution {
	if len(ids) == 0 {
		return s.Clone()
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := make([]CropAllocation, 0, len(s.Allocations))
	for _, a := range s.Allocations {
		if !drop[a.ID] {
			out = append(out, a)
		}
	}
	return Solution{Allocations: out}
}

// Replace returns a new solution where the allocation with the given ID is swapped out
func (s Solution) Replace(id string, replacement CropAllocation) Solution {
	out := slices.Clone(s.Allocations)
	for i := range out {
		if out[i].ID == id {
			out[i] = replacement
		}
	}
	return Solution{Allocations: out}
}

// Find returns the allocation with the given ID
func (s Solution) Find(id string) (CropAllocation, bool) {
	for _, a := range s.Allocations {
		if a.ID == id {
			return a, true
		}
	}
	return CropAllocation{}, false
}

// OnField returns the allocations placed on a field
func (s Solution) OnField(fieldID string) []CropAllocation {
	var out []CropAllocation
	for _, a := range s.Allocations {
		if a.Field.ID == fieldID {
			out = append(out, a)
		}
	}
	return out
}

// FieldIDs returns the distinct field IDs in use, sorted
func (s Solution) FieldIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, a := range s.Allocations {
		if !seen[a.Field.ID] {
			seen[a.Field.ID] = true
			ids = append(ids, a.Field.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// CropQuantity returns the total planted quantity of a crop
func (s Solution) CropQuantity(cropID string) float64 {
	total := 0.0
	for _, a := range s.Allocations {
		if a.Crop.ID == cropID {
			total += a.Quantity
		}
	}
	return total
}

// UsedKeys returns the candidate keys present in the solution
func (s Solution) UsedKeys() map[string]bool {
	keys := make(map[string]bool, len(s.Allocations))
	for _, a := range s.Allocations {
		keys[a.Key()] = true
	}
	return keys
}

// SortedByStart returns the allocations ordered by start date, completion date, then ID
func (s Solution) SortedByStart() []CropAllocation {
	out := slices.Clone(s.Allocations)
	slices.SortFunc(out, CompareByStart)
	return out
}

// CompareByStart orders allocations chronologically with a stable ID tie-break
func CompareByStart(a, b CropAllocation) int {
	if c := a.StartDate.Compare(b.StartDate); c != 0 {
		return c
	}
	if c := a.CompletionDate.Compare(b.CompletionDate); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
