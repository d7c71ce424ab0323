package growthwindow

import (
	"math"
	"slices"
	"time"

	"github.com/jakechorley/crop-planner/pkg/core/model"
	"github.com/jakechorley/crop-planner/pkg/core/thermal"
)

// Request describes one field x crop cultivation window search
type Request struct {
	Field   model.Field
	Crop    model.Crop
	Profile model.CropProfile
	Weather *thermal.Series

	// StartDates are the admissible sowing dates inside the evaluation window
	StartDates []time.Time

	// Deadline is the last day a cultivation may complete on
	Deadline time.Time
}

// Interval is a feasible cultivation window for a field x crop pair
type Interval struct {
	StartDate        time.Time
	CompletionDate   time.Time
	GrowthDays       int
	AccumulatedGDD   float64
	YieldFactor      float64
	HarvestStartDate *time.Time

	// Cost is growth days times the field's daily fixed cost
	Cost float64

	// Value is the full-capacity profit estimate used to compare windows
	Value float64
}

// Result holds every feasible window and the optimal non-overlapping selection
type Result struct {
	// Intervals are all windows that complete before the deadline, in start order
	Intervals []Interval

	// Selected is the maximum-value set of mutually compatible windows (fallow included),
	// ordered by completion date
	Selected      []Interval
	SelectedValue float64
}

// IsEmpty reports whether no window met the deadline
func (r Result) IsEmpty() bool {
	return len(r.Intervals) == 0
}

// FullCapacityQuantity is the number of whole units that fit on the field
func FullCapacityQuantity(field model.Field, crop model.Crop) float64 {
	if crop.AreaPerUnit <= 0 {
		return 0
	}
	// Guard against 999.9999 style float error before flooring
	return math.Floor(field.Area/crop.AreaPerUnit + 1e-9)
}

// Optimize simulates every admissible start date and selects the optimal set of
// non-overlapping windows. A pair with no window meeting the deadline yields an empty
// Result; that is not an error.
func Optimize(req Request) Result {
	quantity := FullCapacityQuantity(req.Field, req.Crop)
	fullRevenue := quantity * req.Crop.AreaPerUnit * req.Crop.RevenuePerArea

	var result Result
	for _, start := range req.StartDates {
		progress := thermal.Simulate(req.Profile, req.Weather, start, req.Deadline)
		if !progress.Completed {
			continue
		}

		cost := float64(progress.GrowthDays) * req.Field.DailyFixedCost
		result.Intervals = append(result.Intervals, Interval{
			StartDate:        progress.StartDate,
			CompletionDate:   progress.CompletionDate,
			GrowthDays:       progress.GrowthDays,
			AccumulatedGDD:   progress.AccumulatedGDD,
			YieldFactor:      progress.YieldFactor,
			HarvestStartDate: progress.HarvestStartDate,
			Cost:             cost,
			Value:            fullRevenue*progress.YieldFactor - cost,
		})
	}

	result.Selected, result.SelectedValue = SelectNonOverlapping(result.Intervals, req.Field.FallowPeriodDays)
	return result
}

// SelectNonOverlapping solves weighted interval scheduling over the intervals.
//
// Intervals are sorted by completion date; p(i) is found by binary search as the last
// interval whose completion plus the fallow period falls strictly before interval i
// starts. dp[i] = max(dp[i-1], dp[p(i)] + value(i)). An interval is only taken when it
// strictly improves the optimum, so ties keep the earlier-completing selection.
//
// Runs in O(n log n) and returns the chosen intervals in completion order with their
// total value.
func SelectNonOverlapping(intervals []Interval, fallowDays int) ([]Interval, float64) {
	n := len(intervals)
	if n == 0 {
		return nil, 0
	}

	sorted := slices.Clone(intervals)
	slices.SortStableFunc(sorted, func(a, b Interval) int {
		if c := a.CompletionDate.Compare(b.CompletionDate); c != 0 {
			return c
		}
		return a.StartDate.Compare(b.StartDate)
	})

	// Fallow-inclusive end of each interval; monotone because completion dates are sorted
	blockedUntil := make([]time.Time, n)
	for i, iv := range sorted {
		blockedUntil[i] = iv.CompletionDate.AddDate(0, 0, fallowDays)
	}

	// prev[i] is the index of p(i) in sorted, or -1
	prev := make([]int, n)
	for i, iv := range sorted {
		j, _ := slices.BinarySearchFunc(blockedUntil[:i], iv.StartDate, func(end, start time.Time) int {
			if end.Before(start) {
				return -1
			}
			return 1
		})
		prev[i] = j - 1
	}

	dp := make([]float64, n+1)
	take := make([]bool, n)
	for i, iv := range sorted {
		with := dp[prev[i]+1] + iv.Value
		if with > dp[i] {
			dp[i+1] = with
			take[i] = true
		} else {
			dp[i+1] = dp[i]
		}
	}

	var selected []Interval
	for i := n - 1; i >= 0; {
		if take[i] {
			selected = append(selected, sorted[i])
			i = prev[i]
		} else {
			i--
		}
	}
	slices.Reverse(selected)

	return selected, dp[n]
}

// Ranked returns up to k windows: the DP-selected set first (best value first), then
// the remaining windows by value. Ties go to the earliest completion date.
func (r Result) Ranked(k int) []Interval {
	if k <= 0 {
		return nil
	}

	byValue := func(a, b Interval) int {
		if a.Value != b.Value {
			if a.Value > b.Value {
				return -1
			}
			return 1
		}
		if c := a.CompletionDate.Compare(b.CompletionDate); c != 0 {
			return c
		}
		return a.StartDate.Compare(b.StartDate)
	}

	chosen := make(map[time.Time]bool, len(r.Selected))
	ranked := slices.Clone(r.Selected)
	slices.SortStableFunc(ranked, byValue)
	for _, iv := range ranked {
		chosen[iv.StartDate] = true
	}

	var rest []Interval
	for _, iv := range r.Intervals {
		if !chosen[iv.StartDate] {
			rest = append(rest, iv)
		}
	}
	slices.SortStableFunc(rest, byValue)

	ranked = append(ranked, rest...)
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
