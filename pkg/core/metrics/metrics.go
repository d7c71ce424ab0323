package metrics

import (
	"math"

	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// Result is the realized economics of one allocation in the context of a solution
type Result struct {
	Cost    float64
	Revenue float64
	Profit  float64

	// ProfitRate is profit divided by cost
	ProfitRate float64

	// GrossRevenue is the revenue before the market cap was applied
	GrossRevenue          float64
	YieldFactor           float64
	InteractionMultiplier float64

	// Capped is true when the crop's MaxRevenue limited the realized revenue
	Capped bool
}

// SolutionMetrics aggregates the economics of a whole solution
type SolutionMetrics struct {
	TotalCost    float64
	TotalRevenue float64
	TotalProfit  float64

	ByAllocation  map[string]Result
	RevenueByCrop map[string]float64
}

// Evaluator is the single source of truth for the objective value. It holds only
// read-only rules, so concurrent use is safe.
type Evaluator struct {
	rules []model.InteractionRule
}

// NewEvaluator creates an evaluator for the given interaction rules
func NewEvaluator(rules []model.InteractionRule) *Evaluator {
	return &Evaluator{rules: rules}
}

// Evaluate computes the realized cost, revenue and profit of a candidate joining the
// current allocations.
//
// Revenue is quantity x revenue per area x area per unit x yield factor x interaction
// multiplier, then capped so that the crop's cumulative revenue (including what the
// current allocations already realize) never exceeds MaxRevenue.
// Cost is growth days x the field's daily fixed cost.
func (e *Evaluator) Evaluate(candidate model.AllocationCandidate, current []model.CropAllocation) Result {
	multiplier := e.multiplier(predecessor(candidate, current), candidate.Crop)
	consumed := e.consumedRevenue(candidate.Crop.ID, current)
	return e.evaluate(candidate, multiplier, consumed)
}

// EvaluateSolution evaluates every allocation in start-date order, so that cap
// consumption and predecessor lookups only see allocations that started earlier
func (e *Evaluator) EvaluateSolution(solution model.Solution) SolutionMetrics {
	sorted := solution.SortedByStart()
	out := SolutionMetrics{
		ByAllocation:  make(map[string]Result, len(sorted)),
		RevenueByCrop: make(map[string]float64),
	}

	for i, a := range sorted {
		multiplier := e.multiplier(predecessor(a.AllocationCandidate, sorted[:i]), a.Crop)
		res := e.evaluate(a.AllocationCandidate, multiplier, out.RevenueByCrop[a.Crop.ID])

		out.ByAllocation[a.ID] = res
		out.RevenueByCrop[a.Crop.ID] += res.Revenue
		out.TotalCost += res.Cost
		out.TotalRevenue += res.Revenue
		out.TotalProfit += res.Profit
	}

	return out
}

// TotalProfit is the objective value of a solution
func (e *Evaluator) TotalProfit(solution model.Solution) float64 {
	return e.EvaluateSolution(solution).TotalProfit
}

func (e *Evaluator) evaluate(c model.AllocationCandidate, multiplier, consumed float64) Result {
	cost := float64(c.GrowthDays) * c.Field.DailyFixedCost
	gross := c.Quantity * c.Crop.RevenuePerArea * c.Crop.AreaPerUnit * c.YieldFactor * multiplier

	revenue := gross
	capped := false
	if c.Crop.MaxRevenue != nil {
		remaining := math.Max(0, *c.Crop.MaxRevenue-consumed)
		if revenue > remaining {
			revenue = remaining
			capped = true
		}
	}

	profit := revenue - cost
	return Result{
		Cost:                  cost,
		Revenue:               revenue,
		Profit:                profit,
		ProfitRate:            ProfitRate(profit, cost),
		GrossRevenue:          gross,
		YieldFactor:           c.YieldFactor,
		InteractionMultiplier: multiplier,
		Capped:                capped,
	}
}

// consumedRevenue replays the crop's allocations in start order and returns the
// revenue they realize under the cap
func (e *Evaluator) consumedRevenue(cropID string, current []model.CropAllocation) float64 {
	sorted := model.NewSolution(current...).SortedByStart()
	consumed := 0.0
	for i, a := range sorted {
		if a.Crop.ID != cropID {
			continue
		}
		multiplier := e.multiplier(predecessor(a.AllocationCandidate, sorted[:i]), a.Crop)
		consumed += e.evaluate(a.AllocationCandidate, multiplier, consumed).Revenue
	}
	return consumed
}

// multiplier is the product of every interaction rule that fires when next follows
// previous on the same field
func (e *Evaluator) multiplier(previous *model.CropAllocation, next model.Crop) float64 {
	if previous == nil {
		return 1.0
	}
	m := 1.0
	for _, rule := range e.rules {
		if rule.Applies(previous.Crop, next) {
			m *= rule.ImpactRatio
		}
	}
	return m
}

// predecessor returns the allocation on the candidate's field that completed most
// recently before the candidate starts, i.e. the crop it directly follows
func predecessor(c model.AllocationCandidate, allocations []model.CropAllocation) *model.CropAllocation {
	var prev *model.CropAllocation
	for i := range allocations {
		a := &allocations[i]
		if a.Field.ID != c.Field.ID || !a.CompletionDate.Before(c.StartDate) {
			continue
		}
		if prev == nil || a.CompletionDate.After(prev.CompletionDate) {
			prev = a
		}
	}
	return prev
}

// ProfitRate divides profit by cost. Zero-cost allocations rate as +Inf when
// profitable and 0 otherwise.
func ProfitRate(profit, cost float64) float64 {
	if cost > 0 {
		return profit / cost
	}
	if profit > 0 {
		return math.Inf(1)
	}
	return 0
}
