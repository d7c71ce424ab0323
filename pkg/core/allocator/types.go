package allocator

import (
	"math"

	"github.com/jakechorley/crop-planner/pkg/core/metrics"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// PlanState is the solution under construction plus the read-only context criteria need
type PlanState struct {
	// Solution is replaced, never mutated, on every insertion
	Solution model.Solution

	// Evaluator computes realized economics in the context of Solution
	Evaluator *metrics.Evaluator

	// MinQuantities maps crop ID to the minimum planted quantity across the plan
	MinQuantities map[string]float64
}

// RemainingTarget returns how many more units of the crop are needed to meet its
// minimum quantity target (0 when met or untargeted)
func (s *PlanState) RemainingTarget(cropID string) float64 {
	target, ok := s.MinQuantities[cropID]
	if !ok {
		return 0
	}
	return math.Max(0, target-s.Solution.CropQuantity(cropID))
}

// TargetUnmet reports whether the crop's minimum quantity target is still open
func (s *PlanState) TargetUnmet(cropID string) bool {
	return s.RemainingTarget(cropID) > 0
}

// RankedCandidate pairs a candidate with its economics at ranking time
type RankedCandidate struct {
	Candidate model.AllocationCandidate
	Metrics   metrics.Result
}

// UnmetTarget reports a crop whose minimum quantity could not be planted
type UnmetTarget struct {
	CropID  string
	Target  float64
	Planted float64
}

// Shortfall is the number of units still missing
func (u UnmetTarget) Shortfall() float64 {
	return u.Target - u.Planted
}

// KeepsTargets reports whether moving from current to next leaves no targeted crop
// further below its minimum quantity than it already was
func KeepsTargets(current, next model.Solution, minQuantities map[string]float64) bool {
	for cropID, target := range minQuantities {
		planted := next.CropQuantity(cropID)
		if planted < target && planted < current.CropQuantity(cropID) {
			return false
		}
	}
	return true
}
