package allocator

import (
	"cmp"
	"slices"
	"strings"

	"github.com/jakechorley/crop-planner/pkg/core/metrics"
	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// RankCandidates evaluates every candidate against the current allocations and sorts
// them for insertion: profit rate descending, then absolute profit descending, then
// earlier start date. Remaining ties fall back to the candidate key so the order is
// deterministic.
func RankCandidates(evaluator *metrics.Evaluator, candidates []model.AllocationCandidate, current []model.CropAllocation) []RankedCandidate {
	ranked := make([]RankedCandidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = RankedCandidate{Candidate: c, Metrics: evaluator.Evaluate(c, current)}
	}

	slices.SortStableFunc(ranked, CompareRanked)
	return ranked
}

// CompareRanked orders ranked candidates best first
func CompareRanked(a, b RankedCandidate) int {
	if c := cmp.Compare(b.Metrics.ProfitRate, a.Metrics.ProfitRate); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Metrics.Profit, a.Metrics.Profit); c != 0 {
		return c
	}
	if c := a.Candidate.StartDate.Compare(b.Candidate.StartDate); c != 0 {
		return c
	}
	return strings.Compare(a.Candidate.Key(), b.Candidate.Key())
}
