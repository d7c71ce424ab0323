package candidates

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/crop-planner/pkg/core/growthwindow"
	"github.com/jakechorley/crop-planner/pkg/core/metrics"
	"github.com/jakechorley/crop-planner/pkg/core/model"
	"github.com/jakechorley/crop-planner/pkg/core/thermal"
)

// Config controls how candidates are enumerated
type Config struct {
	// QuantityLevels are fractions of field capacity to generate candidates at
	QuantityLevels []float64

	// TopK is the number of ranked growth windows kept per field x crop pair
	TopK int

	// MinProfitRate discards candidates whose stand-alone profit rate is lower (nil = keep all)
	MinProfitRate *float64

	// Workers bounds concurrent field x crop evaluations (0 = GOMAXPROCS)
	Workers int

	// StartDateRule is an RFC 5545 recurrence for admissible sowing dates (empty = daily)
	StartDateRule string
}

// DefaultConfig returns the standard generation settings
func DefaultConfig() Config {
	return Config{
		QuantityLevels: []float64{1.0, 0.75, 0.5, 0.25},
		TopK:           3,
	}
}

// Generator enumerates allocation candidates for a planning problem
type Generator struct {
	cfg       Config
	evaluator *metrics.Evaluator
	logger    *zap.Logger
}

// NewGenerator creates a generator. The evaluator applies the profit-rate floor.
func NewGenerator(cfg Config, evaluator *metrics.Evaluator, logger *zap.Logger) *Generator {
	if len(cfg.QuantityLevels) == 0 {
		cfg.QuantityLevels = DefaultConfig().QuantityLevels
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Generator{cfg: cfg, evaluator: evaluator, logger: logger}
}

type pairJob struct {
	field   model.Field
	crop    model.Crop
	profile model.CropProfile
	series  *thermal.Series
}

// Generate runs the growth-window optimizer for every field x crop pair on a bounded
// worker pool and expands the ranked windows across the quantity levels.
//
// Each pair writes only to its own slot, so the pool is assembled in field x crop
// order regardless of scheduling.
func (g *Generator) Generate(ctx context.Context, problem *model.Problem) (*Pool, error) {
	dates, err := AdmissibleStartDates(g.cfg.StartDateRule, problem.PlanningStart, problem.PlanningEnd)
	if err != nil {
		return nil, err
	}

	var jobs []pairJob
	for _, field := range problem.Fields {
		records := problem.WeatherFor(field)
		if len(records) == 0 {
			g.logger.Warn("No weather for field, skipping", zap.String("field_id", field.ID))
			continue
		}
		series, err := thermal.NewSeries(records)
		if err != nil {
			return nil, fmt.Errorf("failed to index weather for field %s: %w", field.ID, err)
		}

		for _, crop := range problem.Crops {
			profile, ok := problem.ProfileFor(crop.ID)
			if !ok {
				g.logger.Warn("No growth profile for crop, skipping pair",
					zap.String("field_id", field.ID),
					zap.String("crop_id", crop.ID))
				continue
			}
			jobs = append(jobs, pairJob{field: field, crop: crop, profile: profile, series: series})
		}
	}

	slots := make([][]model.AllocationCandidate, len(jobs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for i, job := range jobs {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			slots[i] = g.generatePair(job, dates, problem.PlanningEnd)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("candidate generation interrupted: %w", err)
	}

	var all []model.AllocationCandidate
	for _, slot := range slots {
		all = append(all, slot...)
	}

	g.logger.Info("Generated candidates",
		zap.Int("pairs", len(jobs)),
		zap.Int("start_dates", len(dates)),
		zap.Int("candidates", len(all)))

	return NewPool(all), nil
}

func (g *Generator) generatePair(job pairJob, dates []time.Time, deadline time.Time) []model.AllocationCandidate {
	result := growthwindow.Optimize(growthwindow.Request{
		Field:      job.field,
		Crop:       job.crop,
		Profile:    job.profile,
		Weather:    job.series,
		StartDates: dates,
		Deadline:   deadline,
	})
	if result.IsEmpty() {
		g.logger.Warn("No cultivation window completes before the deadline",
			zap.String("field_id", job.field.ID),
			zap.String("crop_id", job.crop.ID))
		return nil
	}

	var out []model.AllocationCandidate
	seen := make(map[string]bool)
	for rank, iv := range result.Ranked(g.cfg.TopK) {
		for _, level := range g.cfg.QuantityLevels {
			quantity := QuantityAt(level, job.field, job.crop)
			if quantity <= 0 {
				continue
			}

			c := model.AllocationCandidate{
				Field:          job.field,
				Crop:           job.crop,
				StartDate:      iv.StartDate,
				CompletionDate: iv.CompletionDate,
				GrowthDays:     iv.GrowthDays,
				AccumulatedGDD: iv.AccumulatedGDD,
				Quantity:       quantity,
				AreaUsed:       quantity * job.crop.AreaPerUnit,
				YieldFactor:    iv.YieldFactor,
				QuantityLevel:  level,
				PeriodRank:     rank,
			}
			if seen[c.Key()] {
				continue
			}
			seen[c.Key()] = true

			if g.cfg.MinProfitRate != nil && g.evaluator.Evaluate(c, nil).ProfitRate < *g.cfg.MinProfitRate {
				continue
			}
			out = append(out, c)
		}
	}

	g.logger.Debug("Evaluated pair",
		zap.String("field_id", job.field.ID),
		zap.String("crop_id", job.crop.ID),
		zap.Int("windows", len(result.Intervals)),
		zap.Int("selected_windows", len(result.Selected)),
		zap.Int("candidates", len(out)))

	return out
}

// QuantityAt is the whole number of units that fit on level x the field's area
func QuantityAt(level float64, field model.Field, crop model.Crop) float64 {
	if crop.AreaPerUnit <= 0 || level <= 0 {
		return 0
	}
	return math.Floor(level*field.Area/crop.AreaPerUnit + 1e-9)
}
