package thermal

import (
	"fmt"
	"time"

	"github.com/jakechorley/crop-planner/pkg/core/model"
)

// Series indexes daily weather records by calendar day
type Series struct {
	byDay map[time.Time]model.WeatherRecord
	first time.Time
	last  time.Time
}

// Day truncates a timestamp to its UTC calendar day
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewSeries builds a Series from records ordered by date.
// Returns an error for unordered or duplicate dates.
func NewSeries(records []model.WeatherRecord) (*Series, error) {
	s := &Series{byDay: make(map[time.Time]model.WeatherRecord, len(records))}
	for i, rec := range records {
		d := Day(rec.Date)
		if i > 0 && !d.After(s.last) {
			return nil, fmt.Errorf("weather record %d (%s) is not after %s",
				i, d.Format(model.DateLayout), s.last.Format(model.DateLayout))
		}
		if i == 0 {
			s.first = d
		}
		s.last = d
		s.byDay[d] = rec
	}
	return s, nil
}

// On returns the record for a day
func (s *Series) On(day time.Time) (model.WeatherRecord, bool) {
	rec, ok := s.byDay[Day(day)]
	return rec, ok
}

// Len returns the number of days in the series
func (s *Series) Len() int {
	return len(s.byDay)
}

// Span returns the first and last day covered
func (s *Series) Span() (time.Time, time.Time) {
	return s.first, s.last
}

// DailyGDD computes the growing degree days a single day contributes under a
// temperature profile.
//
// Development is linear above the base temperature up to OptimalMax, then declines
// linearly to zero at MaxTemperature. Without OptimalMax the response is linear
// up to MaxTemperature (if any) and zero beyond it.
func DailyGDD(profile model.TemperatureProfile, rec model.WeatherRecord) float64 {
	t := rec.TempMean
	base := profile.BaseTemperature
	if t <= base {
		return 0
	}

	if profile.MaxTemperature != nil && t >= *profile.MaxTemperature {
		return 0
	}

	if profile.OptimalMax != nil && t > *profile.OptimalMax {
		plateau := *profile.OptimalMax - base
		if profile.MaxTemperature == nil || *profile.MaxTemperature <= *profile.OptimalMax {
			return plateau
		}
		// Linear decline between OptimalMax and MaxTemperature
		span := *profile.MaxTemperature - *profile.OptimalMax
		return plateau * (*profile.MaxTemperature - t) / span
	}

	return t - base
}

// IsStressDay reports whether the day's extremes cross the profile's stress thresholds
func IsStressDay(profile model.TemperatureProfile, rec model.WeatherRecord) bool {
	if profile.LowStressThreshold != nil && rec.TempMin < *profile.LowStressThreshold {
		return true
	}
	if profile.HighStressThreshold != nil && rec.TempMax > *profile.HighStressThreshold {
		return true
	}
	return false
}

// StageTransition records the day a growth stage began
type StageTransition struct {
	Stage     string
	StartDate time.Time
}

// Progress is the result of simulating development from a start date
type Progress struct {
	StartDate      time.Time
	CompletionDate time.Time

	// Completed is false if the deadline or the weather ran out first
	Completed bool

	// GrowthDays counts calendar days from StartDate to CompletionDate inclusive
	GrowthDays     int
	AccumulatedGDD float64

	Transitions      []StageTransition
	HarvestStartDate *time.Time

	StressDays  int
	YieldFactor float64
}

// Simulate accumulates GDD day by day from start until the profile's total
// requirement is met, the deadline passes, or the weather series has a gap
func Simulate(profile model.CropProfile, series *Series, start, deadline time.Time) Progress {
	start = Day(start)
	deadline = Day(deadline)
	progress := Progress{StartDate: start, YieldFactor: 1.0}
	if len(profile.Stages) == 0 {
		return progress
	}

	stageIdx := 0
	stageGDD := 0.0
	yieldLoss := 0.0
	progress.Transitions = append(progress.Transitions, StageTransition{Stage: profile.Stages[0].Name, StartDate: start})

	for d := start; !d.After(deadline); d = d.AddDate(0, 0, 1) {
		rec, ok := series.On(d)
		if !ok {
			break
		}

		stage := profile.Stages[stageIdx]
		if IsStressDay(stage.Temperature, rec) {
			progress.StressDays++
			yieldLoss += stage.Temperature.StressYieldImpact
		}

		gdd := DailyGDD(stage.Temperature, rec)
		progress.AccumulatedGDD += gdd

		// A single warm day may finish one stage and carry into the next
		remaining := gdd
		for stageIdx < len(profile.Stages) {
			need := profile.Stages[stageIdx].RequiredGDD - stageGDD
			markHarvestStart(&progress, profile.Stages[stageIdx], stageGDD+min(remaining, need), d)
			if remaining < need {
				stageGDD += remaining
				break
			}
			remaining -= need
			stageGDD = 0
			stageIdx++
			if stageIdx < len(profile.Stages) {
				progress.Transitions = append(progress.Transitions, StageTransition{
					Stage:     profile.Stages[stageIdx].Name,
					StartDate: d,
				})
			}
		}

		if stageIdx == len(profile.Stages) {
			progress.Completed = true
			progress.CompletionDate = d
			progress.GrowthDays = DaysBetween(start, d) + 1
			break
		}
	}

	progress.YieldFactor = clamp01(1.0 - yieldLoss)
	return progress
}

// markHarvestStart records d as the harvest start once a stage with a harvest
// threshold has accumulated enough GDD
func markHarvestStart(progress *Progress, stage model.GrowthStage, stageGDD float64, d time.Time) {
	if stage.HarvestStartGDD == nil || progress.HarvestStartDate != nil || stageGDD < *stage.HarvestStartGDD {
		return
	}
	harvest := d
	progress.HarvestStartDate = &harvest
}

// DaysBetween returns the number of whole calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
