package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/crop-planner/pkg/clients/sheetsclient"
	"github.com/jakechorley/crop-planner/pkg/core/feasibility"
	"github.com/jakechorley/crop-planner/pkg/core/model"
	"github.com/jakechorley/crop-planner/pkg/db"
)

// SavePlanStore defines the database operations needed to save a plan
type SavePlanStore interface {
	SavePlanRun(ctx context.Context, run *db.PlanRun, allocations []db.AllocationRecord) error
}

// LoadPlanStore defines the database operations needed to read a saved plan
type LoadPlanStore interface {
	GetPlanRun(ctx context.Context, id string) (*db.PlanRun, error)
	GetAllocations(ctx context.Context, runID string) ([]db.AllocationRecord, error)
}

// PlanPublisher writes a plan to a spreadsheet
type PlanPublisher interface {
	PublishPlan(spreadsheetID string, plan *sheetsclient.PublishedPlan) error
}

// SavePlan stores a plan result and its allocations as one run. parentRunID links an
// adjusted plan to the run it was adjusted from and may be empty.
func SavePlan(
	ctx context.Context,
	store SavePlanStore,
	problem *model.Problem,
	result *PlanResult,
	parentRunID string,
	logger *zap.Logger,
) (*db.PlanRun, error) {
	run := &db.PlanRun{
		ID:             result.RunID,
		CreatedAt:      time.Now().UTC(),
		Algorithm:      result.Algorithm,
		PlanningStart:  problem.PlanningStart,
		PlanningEnd:    problem.PlanningEnd,
		TotalProfit:    result.TotalProfit,
		TotalRevenue:   result.TotalRevenue,
		TotalCost:      result.TotalCost,
		InitialProfit:  result.InitialProfit,
		DidNotConverge: result.DidNotConverge,
		ParentRunID:    parentRunID,
	}

	records := make([]db.AllocationRecord, len(result.Allocations))
	for i, ar := range result.Allocations {
		a := ar.Allocation
		records[i] = db.AllocationRecord{
			ID:             a.ID,
			RunID:          run.ID,
			FieldID:        a.Field.ID,
			CropID:         a.Crop.ID,
			StartDate:      a.StartDate,
			CompletionDate: a.CompletionDate,
			GrowthDays:     a.GrowthDays,
			AccumulatedGDD: a.AccumulatedGDD,
			Quantity:       a.Quantity,
			AreaUsed:       a.AreaUsed,
			YieldFactor:    a.YieldFactor,
			QuantityLevel:  a.QuantityLevel,
			PeriodRank:     a.PeriodRank,
			Cost:           ar.Metrics.Cost,
			Revenue:        ar.Metrics.Revenue,
			Profit:         ar.Metrics.Profit,
		}
	}

	logger.Debug("Saving plan run", zap.String("run_id", run.ID), zap.Int("allocations", len(records)))

	if err := store.SavePlanRun(ctx, run, records); err != nil {
		return nil, fmt.Errorf("failed to save plan run: %w", err)
	}

	logger.Info("Saved plan run", zap.String("run_id", run.ID), zap.Float64("profit", run.TotalProfit))
	return run, nil
}

// LoadSolution rebuilds a saved run's solution against the current problem. Fields and
// crops are looked up by ID, so a run can only be reloaded while they still exist.
func LoadSolution(ctx context.Context, store LoadPlanStore, problem *model.Problem, runID string) (*db.PlanRun, model.Solution, error) {
	run, err := store.GetPlanRun(ctx, runID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, model.Solution{}, fmt.Errorf("plan run %s not found", runID)
		}
		return nil, model.Solution{}, fmt.Errorf("failed to fetch plan run: %w", err)
	}

	records, err := store.GetAllocations(ctx, runID)
	if err != nil {
		return nil, model.Solution{}, fmt.Errorf("failed to fetch allocations: %w", err)
	}

	allocations := make([]model.CropAllocation, 0, len(records))
	for _, r := range records {
		field, ok := problem.FieldByID(r.FieldID)
		if !ok {
			return nil, model.Solution{}, fmt.Errorf("allocation %s refers to unknown field %s", r.ID, r.FieldID)
		}
		crop, ok := problem.CropByID(r.CropID)
		if !ok {
			return nil, model.Solution{}, fmt.Errorf("allocation %s refers to unknown crop %s", r.ID, r.CropID)
		}

		allocations = append(allocations, model.CropAllocation{
			ID: r.ID,
			AllocationCandidate: model.AllocationCandidate{
				Field:          field,
				Crop:           crop,
				StartDate:      r.StartDate,
				CompletionDate: r.CompletionDate,
				GrowthDays:     r.GrowthDays,
				AccumulatedGDD: r.AccumulatedGDD,
				Quantity:       r.Quantity,
				AreaUsed:       r.AreaUsed,
				YieldFactor:    r.YieldFactor,
				QuantityLevel:  r.QuantityLevel,
				PeriodRank:     r.PeriodRank,
			},
		})
	}

	solution := model.NewSolution(allocations...)
	if err := feasibility.Validate(solution); err != nil {
		return nil, model.Solution{}, fmt.Errorf("saved plan %s is no longer feasible: %w", runID, err)
	}
	return run, solution, nil
}

// ListRuns returns saved runs, newest first, limited to count when count is positive
func ListRuns(ctx context.Context, store db.PlanRunStore, count int) ([]db.PlanRun, error) {
	runs, err := store.GetPlanRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch plan runs: %w", err)
	}

	slices.SortStableFunc(runs, func(a, b db.PlanRun) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if count > 0 && count < len(runs) {
		runs = runs[:count]
	}
	return runs, nil
}

// PublishPlan writes a saved run to the plan spreadsheet. Field and crop names come
// from problem when given, otherwise the IDs are shown.
func PublishPlan(
	ctx context.Context,
	store LoadPlanStore,
	publisher PlanPublisher,
	spreadsheetID string,
	problem *model.Problem,
	runID string,
	logger *zap.Logger,
) (*sheetsclient.PublishedPlan, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("no plan spreadsheet configured")
	}

	run, err := store.GetPlanRun(ctx, runID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("plan run %s not found", runID)
		}
		return nil, fmt.Errorf("failed to fetch plan run: %w", err)
	}

	records, err := store.GetAllocations(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch allocations: %w", err)
	}
	slices.SortStableFunc(records, func(a, b db.AllocationRecord) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return strings.Compare(a.FieldID, b.FieldID)
	})

	published := &sheetsclient.PublishedPlan{
		RunID:         run.ID,
		Algorithm:     run.Algorithm,
		PlanningStart: run.PlanningStart,
		PlanningEnd:   run.PlanningEnd,
		TotalProfit:   run.TotalProfit,
		TotalRevenue:  run.TotalRevenue,
		TotalCost:     run.TotalCost,
		Rows:          make([]sheetsclient.PublishedPlanRow, len(records)),
	}
	for i, r := range records {
		published.Rows[i] = sheetsclient.PublishedPlanRow{
			AllocationID: r.ID,
			Field:        fieldName(problem, r.FieldID),
			Crop:         cropName(problem, r.CropID),
			Start:        r.StartDate,
			Completion:   r.CompletionDate,
			Days:         r.GrowthDays,
			Quantity:     r.Quantity,
			Area:         r.AreaUsed,
			Revenue:      r.Revenue,
			Cost:         r.Cost,
			Profit:       r.Profit,
		}
	}

	logger.Debug("Publishing plan", zap.String("run_id", run.ID), zap.Int("rows", len(published.Rows)))

	if err := publisher.PublishPlan(spreadsheetID, published); err != nil {
		return nil, fmt.Errorf("failed to publish plan: %w", err)
	}

	logger.Info("Published plan", zap.String("run_id", run.ID))
	return published, nil
}

func fieldName(problem *model.Problem, id string) string {
	if problem != nil {
		if f, ok := problem.FieldByID(id); ok && f.Name != "" {
			return f.Name
		}
	}
	return id
}

func cropName(problem *model.Problem, id string) string {
	if problem != nil {
		if c, ok := problem.CropByID(id); ok && c.Name != "" {
			return c.Name
		}
	}
	return id
}
