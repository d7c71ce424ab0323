// Package testfixtures builds small deterministic planning inputs for tests.
package testfixtures

import (
	"time"

	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// Date parses a YYYY-MM-DD date and panics on malformed input
func Date(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// ConstantWeather returns days of weather with a fixed mean and a 10 degree daily range
func ConstantWeather(start time.Time, days int, mean float64) []model.WeatherRecord {
	records := make([]model.WeatherRecord, days)
	for i := range records {
		records[i] = model.WeatherRecord{
			Date:     start.AddDate(0, 0, i),
			TempMean: mean,
			TempMin:  mean - 5,
			TempMax:  mean + 5,
		}
	}
	return records
}

// SeasonalWeather returns a year-like series that warms from winterMean to summerMean
// and back, so growth windows depend on the start date
func SeasonalWeather(start time.Time, days int, winterMean, summerMean float64) []model.WeatherRecord {
	records := make([]model.WeatherRecord, days)
	half := float64(days) / 2
	for i := range records {
		// Triangle wave peaking mid-series
		pos := float64(i)
		var frac float64
		if pos <= half {
			frac = pos / half
		} else {
			frac = (float64(days) - pos) / half
		}
		mean := winterMean + (summerMean-winterMean)*frac
		records[i] = model.WeatherRecord{
			Date:     start.AddDate(0, 0, i),
			TempMean: mean,
			TempMin:  mean - 6,
			TempMax:  mean + 6,
		}
	}
	return records
}

// SingleStageProfile returns a one-stage profile with no stress thresholds
func SingleStageProfile(cropID string, requiredGDD, baseTemperature float64) model.CropProfile {
	return model.CropProfile{
		CropID: cropID,
		Stages: []model.GrowthStage{
			{
				Name:        "growth",
				RequiredGDD: requiredGDD,
				Temperature: model.TemperatureProfile{BaseTemperature: baseTemperature},
			},
		},
	}
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// SampleProblem returns a small multi-field, multi-crop planning year with constant
// 20 degree weather. With a base of 10 degrees each crop accrues 10 GDD per day.
func SampleProblem() *model.Problem {
	start := Date("2024-01-01")
	return &model.Problem{
		PlanningStart: start,
		PlanningEnd:   Date("2024-12-31"),
		Fields: []model.Field{
			{ID: "north", Name: "North", Area: 1000, DailyFixedCost: 500, FallowPeriodDays: 28},
			{ID: "south", Name: "South", Area: 600, DailyFixedCost: 300, FallowPeriodDays: 28},
			{ID: "east", Name: "East", Area: 400, DailyFixedCost: 200, FallowPeriodDays: 14},
		},
		Crops: []model.Crop{
			{ID: "tomato", Name: "Tomato", AreaPerUnit: 0.5, RevenuePerArea: 900, Groups: []string{"Solanaceae"}},
			{ID: "eggplant", Name: "Eggplant", AreaPerUnit: 0.5, RevenuePerArea: 800, Groups: []string{"Solanaceae"}},
			{ID: "cabbage", Name: "Cabbage", AreaPerUnit: 0.25, RevenuePerArea: 500, MaxRevenue: Float(400000), Groups: []string{"Brassicaceae"}},
			{ID: "spinach", Name: "Spinach", AreaPerUnit: 0.1, RevenuePerArea: 300, Groups: []string{"Amaranthaceae"}},
		},
		Profiles: []model.CropProfile{
			SingleStageProfile("tomato", 1200, 10),
			SingleStageProfile("eggplant", 1000, 10),
			SingleStageProfile("cabbage", 700, 10),
			SingleStageProfile("spinach", 400, 10),
		},
		Rules: []model.InteractionRule{
			{
				Type:          model.RuleContinuousCultivation,
				SourceGroup:   "Solanaceae",
				TargetGroup:   "Solanaceae",
				ImpactRatio:   0.7,
				IsDirectional: true,
			},
		},
		Weather: map[string][]model.WeatherRecord{
			model.DefaultWeatherKey: ConstantWeather(start, 366, 20),
		},
	}
}
