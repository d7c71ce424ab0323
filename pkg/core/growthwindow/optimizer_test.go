package growthwindow

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/crop-planner/internal/testfixtures"
	"github.com/jakechorley/crop-planner/pkg/core/model"
	"github.com/jakechorley/crop-planner/pkg/core/thermal"
)

func interval(start string, days int, value float64) Interval {
	s := testfixtures.Date(start)
	return Interval{
		StartDate:      s,
		CompletionDate: s.AddDate(0, 0, days-1),
		GrowthDays:     days,
		Value:          value,
	}
}

// bruteForceBest enumerates every subset and returns the best total value of a
// mutually compatible subset
func bruteForceBest(intervals []Interval, fallowDays int) float64 {
	n := len(intervals)
	best := 0.0
	for mask := 0; mask < 1<<n; mask++ {
		total := 0.0
		ok := true
		for i := 0; i < n && ok; i++ {
			if mask&(1<<i) == 0 {
				continue
			}
			total += intervals[i].Value
			for j := i + 1; j < n; j++ {
				if mask&(1<<j) == 0 {
					continue
				}
				a, b := intervals[i], intervals[j]
				aFree := a.CompletionDate.AddDate(0, 0, fallowDays).Before(b.StartDate)
				bFree := b.CompletionDate.AddDate(0, 0, fallowDays).Before(a.StartDate)
				if !aFree && !bFree {
					ok = false
					break
				}
			}
		}
		if ok && total > best {
			best = total
		}
	}
	return best
}

func TestSelectNonOverlapping_MatchesExhaustiveEnumeration(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := testfixtures.Date("2024-01-01")

	for trial := 0; trial < 25; trial++ {
		n := 4 + rng.Intn(13) // up to 16 intervals
		intervals := make([]Interval, n)
		for i := range intervals {
			start := base.AddDate(0, 0, rng.Intn(300))
			days := 10 + rng.Intn(90)
			intervals[i] = Interval{
				StartDate:      start,
				CompletionDate: start.AddDate(0, 0, days-1),
				Value:          float64(rng.Intn(2000) - 300),
			}
		}
		fallow := rng.Intn(30)

		selected, value := SelectNonOverlapping(intervals, fallow)
		assert.InDelta(t, bruteForceBest(intervals, fallow), value, 1e-9, "trial %d", trial)

		// The returned set must be feasible and sum to the reported value
		sum := 0.0
		for i := range selected {
			sum += selected[i].Value
			if i > 0 {
				assert.True(t, selected[i-1].CompletionDate.AddDate(0, 0, fallow).Before(selected[i].StartDate))
			}
		}
		assert.InDelta(t, value, sum, 1e-9)
	}
}

func TestSelectNonOverlapping_TieKeepsEarliestCompletion(t *testing.T) {
	early := interval("2024-03-01", 30, 100)
	late := interval("2024-03-05", 30, 100)

	selected, value := SelectNonOverlapping([]Interval{late, early}, 28)
	require.Len(t, selected, 1)
	assert.Equal(t, early.StartDate, selected[0].StartDate)
	assert.Equal(t, 100.0, value)
}

func TestSelectNonOverlapping_RespectsFallow(t *testing.T) {
	a := interval("2024-03-01", 30, 100) // completes 2024-03-30
	b := interval("2024-04-20", 30, 100) // starts 21 days later

	selected, _ := SelectNonOverlapping([]Interval{a, b}, 28)
	assert.Len(t, selected, 1)

	selected, value := SelectNonOverlapping([]Interval{a, b}, 14)
	assert.Len(t, selected, 2)
	assert.Equal(t, 200.0, value)
}

func TestSelectNonOverlapping_SkipsNonPositiveValues(t *testing.T) {
	selected, value := SelectNonOverlapping([]Interval{interval("2024-03-01", 30, -5)}, 0)
	assert.Empty(t, selected)
	assert.Equal(t, 0.0, value)
}

func newRequest(t *testing.T, weather []model.WeatherRecord, startDates []time.Time, deadline time.Time) Request {
	t.Helper()
	series, err := thermal.NewSeries(weather)
	require.NoError(t, err)
	return Request{
		Field:      model.Field{ID: "f1", Area: 1000, DailyFixedCost: 5000, FallowPeriodDays: 28},
		Crop:       model.Crop{ID: "c1", AreaPerUnit: 0.25, RevenuePerArea: 2000},
		Profile:    testfixtures.SingleStageProfile("c1", 1530, 10),
		Weather:    series,
		StartDates: startDates,
		Deadline:   deadline,
	}
}

func TestOptimize_CostAndValue(t *testing.T) {
	start := testfixtures.Date("2024-04-01")
	req := newRequest(t, testfixtures.ConstantWeather(start, 275, 20), []time.Time{start}, testfixtures.Date("2024-12-31"))

	result := Optimize(req)
	require.Len(t, result.Intervals, 1)
	iv := result.Intervals[0]
	assert.Equal(t, 153, iv.GrowthDays)
	assert.InDelta(t, 765000.0, iv.Cost, 1e-6)
	assert.InDelta(t, 2000000.0-765000.0, iv.Value, 1e-6)
}

func TestOptimize_NoWindowBeforeDeadline(t *testing.T) {
	start := testfixtures.Date("2024-04-01")
	req := newRequest(t, testfixtures.ConstantWeather(start, 275, 20), []time.Time{start}, testfixtures.Date("2024-06-01"))

	result := Optimize(req)
	assert.True(t, result.IsEmpty())
	assert.Empty(t, result.Selected)
}

func TestOptimize_PrefersCheaperWindow(t *testing.T) {
	// Warm summer shortens growth, so a summer start is cheaper than a spring start
	start := testfixtures.Date("2024-01-01")
	weather := testfixtures.SeasonalWeather(start, 366, 8, 28)
	dates := []time.Time{testfixtures.Date("2024-03-01"), testfixtures.Date("2024-06-01")}
	req := newRequest(t, weather, dates, testfixtures.Date("2024-12-31"))
	req.Profile = testfixtures.SingleStageProfile("c1", 800, 10)
	req.Field.FallowPeriodDays = 200 // windows cannot both be chosen

	result := Optimize(req)
	require.Len(t, result.Intervals, 2)
	require.Len(t, result.Selected, 1)
	assert.Equal(t, testfixtures.Date("2024-06-01"), result.Selected[0].StartDate)
}

func TestRanked_SelectedFirstThenByValue(t *testing.T) {
	a := interval("2024-01-10", 30, 50)
	b := interval("2024-01-12", 30, 80)
	c := interval("2024-06-01", 30, 40)
	selected, value := SelectNonOverlapping([]Interval{a, b, c}, 28)
	result := Result{Intervals: []Interval{a, b, c}, Selected: selected, SelectedValue: value}

	ranked := result.Ranked(3)
	require.Len(t, ranked, 3)
	assert.Equal(t, b.StartDate, ranked[0].StartDate)
	assert.Equal(t, c.StartDate, ranked[1].StartDate)
	assert.Equal(t, a.StartDate, ranked[2].StartDate)

	assert.Len(t, result.Ranked(2), 2)
	assert.Nil(t, result.Ranked(0))
}

func TestFullCapacityQuantity(t *testing.T) {
	assert.Equal(t, 4000.0, FullCapacityQuantity(model.Field{Area: 1000}, model.Crop{AreaPerUnit: 0.25}))
	assert.Equal(t, 3.0, FullCapacityQuantity(model.Field{Area: 10}, model.Crop{AreaPerUnit: 3}))
}
