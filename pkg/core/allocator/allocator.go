package allocator

import (
	"slices"
	"strings"

	"github.com/jakechorley/crop-planner/pkg/core/feasibility"
	"github.com/jakechorley/crop-planner/pkg/core/metrics"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// Config contains the configuration for greedy construction
type Config struct {
	// Criteria to apply during construction and final validation
	Criteria []Criterion

	// Evaluator is the objective; required
	Evaluator *metrics.Evaluator

	// MinQuantities maps crop ID to a minimum planted quantity. While a crop's target is
	// unmet, loss-making insertions of that crop are still accepted.
	MinQuantities map[string]float64
}

// Outcome represents the result of a greedy construction
type Outcome struct {
	// Solution is the constructed plan
	Solution model.Solution

	// Success is true when there are no validation errors and every target was met
	Success bool

	// UnmetTargets lists crops whose minimum quantity could not be reached
	UnmetTargets []UnmetTarget

	// ValidationErrors contains any validation errors found in the final solution
	ValidationErrors []ValidationError

	// Inserted counts candidates added by this run
	Inserted int

	// Rejected counts feasible candidates turned down for negative profit
	Rejected int
}

// Construct builds an initial solution from nothing
func Construct(config Config, candidates []model.AllocationCandidate) *Outcome {
	return Fill(config, model.Solution{}, candidates)
}

// Fill ranks the candidates once against the starting solution and then inserts them
// in order. A candidate is inserted when it is feasible, passes every criterion, and
// its profit recomputed against the solution so far is non-negative, or when its
// crop's minimum quantity target is still unmet.
func Fill(config Config, solution model.Solution, candidates []model.AllocationCandidate) *Outcome {
	state := &PlanState{
		Solution:      solution.Clone(),
		Evaluator:     config.Evaluator,
		MinQuantities: config.MinQuantities,
	}
	used := solution.UsedKeys()
	outcome := &Outcome{}

	for _, rc := range RankCandidates(config.Evaluator, candidates, state.Solution.Allocations) {
		c := rc.Candidate
		if used[c.Key()] {
			continue
		}
		if !IsCandidateValid(state, c, config.Criteria) {
			continue
		}

		res := config.Evaluator.Evaluate(c, state.Solution.Allocations)
		if res.Profit < 0 && !state.TargetUnmet(c.Crop.ID) {
			outcome.Rejected++
			continue
		}

		state.Solution = state.Solution.With(model.NewAllocation(c))
		used[c.Key()] = true
		outcome.Inserted++
	}

	return buildOutcome(outcome, state, config.Criteria)
}

// IsCandidateValid checks the built-in feasibility rules and then every criterion
func IsCandidateValid(state *PlanState, c model.AllocationCandidate, criteria []Criterion) bool {
	if !feasibility.IsFeasible(state.Solution, c) {
		return false
	}
	for _, criterion := range criteria {
		if !criterion.IsCandidateValid(state, c) {
			return false
		}
	}
	return true
}

// UnmetTargets lists the crops whose minimum quantity the solution does not reach,
// ordered by crop ID
func UnmetTargets(solution model.Solution, minQuantities map[string]float64) []UnmetTarget {
	var out []UnmetTarget
	for cropID, target := range minQuantities {
		planted := solution.CropQuantity(cropID)
		if planted < target {
			out = append(out, UnmetTarget{CropID: cropID, Target: target, Planted: planted})
		}
	}
	slices.SortFunc(out, func(a, b UnmetTarget) int {
		return strings.Compare(a.CropID, b.CropID)
	})
	return out
}

// buildOutcome creates the final construction report
func buildOutcome(outcome *Outcome, state *PlanState, criteria []Criterion) *Outcome {
	outcome.Solution = state.Solution
	outcome.UnmetTargets = UnmetTargets(state.Solution, state.MinQuantities)
	outcome.ValidationErrors = ValidateSolution(state, criteria)

	// Initialize with empty slices (not nil) for easier consumption
	if outcome.UnmetTargets == nil {
		outcome.UnmetTargets = []UnmetTarget{}
	}
	if outcome.ValidationErrors == nil {
		outcome.ValidationErrors = []ValidationError{}
	}

	outcome.Success = len(outcome.ValidationErrors) == 0 && len(outcome.UnmetTargets) == 0
	return outcome
}
