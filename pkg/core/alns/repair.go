package alns

import (
	"math"

	"github.com/jakechorley/crop-planner/pkg/core/allocator"
	"github.com/jakechorley/crop-planner/pkg/core/feasibility"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// RepairOperator reinserts removed allocations into a partial solution
type RepairOperator int

const (
	// GreedyInsert reinserts removed allocations by descending profit rate
	GreedyInsert RepairOperator = iota
	// RegretInsert first reinserts the allocation with the largest best-vs-second-best gap
	RegretInsert
	// CandidateInsert reinserts greedily and then fills freed capacity from unused candidates
	CandidateInsert
)

// RepairOperators lists every repair operator
var RepairOperators = []RepairOperator{GreedyInsert, RegretInsert, CandidateInsert}

func (o RepairOperator) String() string {
	switch o {
	case GreedyInsert:
		return "greedy_insert"
	case RegretInsert:
		return "regret_insert"
	case CandidateInsert:
		return "candidate_insert"
	default:
		return "unknown"
	}
}

func (e *Engine) repair(op RepairOperator, partial model.Solution, removed []model.CropAllocation) (model.Solution, error) {
	switch op {
	case GreedyInsert:
		return e.greedyInsert(partial, removed), nil
	case RegretInsert:
		return e.regretInsert(partial, removed), nil
	case CandidateInsert:
		repaired := e.greedyInsert(partial, removed)
		outcome := allocator.Fill(allocator.Config{
			Evaluator:     e.evaluator,
			MinQuantities: e.minQuantities,
		}, repaired, e.pool.Unused(repaired))
		return outcome.Solution, nil
	default:
		return partial, ErrNotApplicable
	}
}

// options lists where a removed allocation may go back: its own slot or any pooled
// candidate for the same crop
func (e *Engine) options(a model.CropAllocation) []model.AllocationCandidate {
	seen := map[string]bool{a.Key(): true}
	out := []model.AllocationCandidate{a.AllocationCandidate}
	for _, c := range e.pool.ForCrop(a.Crop.ID) {
		if !seen[c.Key()] {
			seen[c.Key()] = true
			out = append(out, c)
		}
	}
	return out
}

// bestOptions returns the most and second most profitable feasible placements
func (e *Engine) bestOptions(partial model.Solution, a model.CropAllocation) (model.AllocationCandidate, float64, float64, bool) {
	var best model.AllocationCandidate
	best1, best2 := math.Inf(-1), math.Inf(-1)
	found := false
	for _, c := range e.options(a) {
		if feasibility.CanPlace(partial, c) != nil {
			continue
		}
		profit := e.evaluator.Evaluate(c, partial.Allocations).Profit
		if profit > best1 {
			best2 = best1
			best1, best = profit, c
			found = true
		} else if profit > best2 {
			best2 = profit
		}
	}
	return best, best1, best2, found
}

func (e *Engine) worthInserting(partial model.Solution, cropID string, profit float64) bool {
	if profit >= 0 {
		return true
	}
	state := allocator.PlanState{Solution: partial, MinQuantities: e.minQuantities}
	return state.TargetUnmet(cropID)
}

func (e *Engine) greedyInsert(partial model.Solution, removed []model.CropAllocation) model.Solution {
	originals := make([]model.AllocationCandidate, len(removed))
	byKey := make(map[string]model.CropAllocation, len(removed))
	for i, a := range removed {
		originals[i] = a.AllocationCandidate
		byKey[a.Key()] = a
	}

	for _, rc := range allocator.RankCandidates(e.evaluator, originals, partial.Allocations) {
		a := byKey[rc.Candidate.Key()]
		best, profit, _, ok := e.bestOptions(partial, a)
		if !ok || !e.worthInserting(partial, a.Crop.ID, profit) {
			continue
		}
		partial = partial.With(model.CropAllocation{ID: a.ID, AllocationCandidate: best})
	}
	return partial
}

func (e *Engine) regretInsert(partial model.Solution, removed []model.CropAllocation) model.Solution {
	pending := append([]model.CropAllocation(nil), removed...)

	for len(pending) > 0 {
		bestIdx := -1
		bestRegret := math.Inf(-1)
		var bestPlacement model.AllocationCandidate

		for i, a := range pending {
			placement, best1, best2, ok := e.bestOptions(partial, a)
			if !ok || !e.worthInserting(partial, a.Crop.ID, best1) {
				continue
			}
			// A single remaining option has unbounded regret: insert it before it disappears
			regret := math.Inf(1)
			if !math.IsInf(best2, -1) {
				regret = best1 - best2
			}
			if bestIdx < 0 || regret > bestRegret {
				bestIdx, bestRegret, bestPlacement = i, regret, placement
			}
		}
		if bestIdx < 0 {
			break
		}

		partial = partial.With(model.CropAllocation{ID: pending[bestIdx].ID, AllocationCandidate: bestPlacement})
		pending = append(pending[:bestIdx], pending[bestIdx+1:]...)
	}
	return partial
}
