package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/crop-planner/internal/config"
	"github.com/jakechorley/crop-planner/pkg/core/allocator"
	"github.com/jakechorley/crop-planner/pkg/core/allocator/criteria"
	"github.com/jakechorley/crop-planner/pkg/core/candidates"
	"github.com/jakechorley/crop-planner/pkg/core/feasibility"
	"github.com/jakechorley/crop-planner/pkg/core/metrics"
	"github.com/jakechorley/crop-planner/pkg/core/model"
	"github.com/jakechorley/crop-planner/pkg/core/thermal"
)

// AlgorithmAdjust labels runs produced by manual adjustment
const AlgorithmAdjust = "adjust"

// RejectedMove is an instruction that could not be applied and why
type RejectedMove struct {
	Instruction model.MoveInstruction
	Reason      string
}

// AdjustResult is the adjusted plan plus what happened to each instruction
type AdjustResult struct {
	Plan     *PlanResult
	Applied  []model.MoveInstruction
	Rejected []RejectedMove

	// Filled counts pool candidates inserted into capacity the moves freed
	Filled int
}

// Adjust applies manual move and remove instructions to a plan in order. Each
// instruction is checked against the plan as it stands after the earlier ones; an
// instruction that would break feasibility is rejected and the rest still apply.
// Capacity freed by the moves is then filled greedily from a fresh candidate pool.
// The input solution is never modified.
func Adjust(
	ctx context.Context,
	problem *model.Problem,
	solution model.Solution,
	moves []model.MoveInstruction,
	cfg config.OptimizerConfig,
	logger *zap.Logger,
) (*AdjustResult, error) {
	started := time.Now()
	runID := uuid.New().String()
	logger = logger.With(zap.String("run_id", runID))

	if err := problem.CheckReferences(); err != nil {
		return nil, fmt.Errorf("invalid problem: %w", err)
	}
	if err := feasibility.Validate(solution); err != nil {
		return nil, fmt.Errorf("plan to adjust is invalid: %w", err)
	}

	evaluator := metrics.NewEvaluator(problem.Rules)
	allocCfg := allocator.Config{
		Criteria:      criteria.Default(),
		Evaluator:     evaluator,
		MinQuantities: problem.MinQuantities(),
	}

	result := &AdjustResult{Applied: []model.MoveInstruction{}, Rejected: []RejectedMove{}}
	current := solution
	// Slots the user moved or removed something out of are not refilled with the same candidate
	vacated := make(map[string]bool)
	for _, move := range moves {
		before, _ := current.Find(move.AllocationID)
		next, err := applyMove(problem, current, move, allocCfg)
		if err != nil {
			logger.Info("Rejected move",
				zap.String("allocation_id", move.AllocationID),
				zap.String("action", string(move.Action)),
				zap.Error(err))
			result.Rejected = append(result.Rejected, RejectedMove{Instruction: move, Reason: err.Error()})
			continue
		}
		vacated[before.Key()] = true
		current = next
		result.Applied = append(result.Applied, move)
	}

	pool, err := candidates.NewGenerator(CandidatesConfig(cfg), evaluator, logger).Generate(ctx, problem)
	if err != nil {
		return nil, fmt.Errorf("failed to generate candidates: %w", err)
	}
	var fillCandidates []model.AllocationCandidate
	for _, c := range pool.Unused(current) {
		if !vacated[c.Key()] {
			fillCandidates = append(fillCandidates, c)
		}
	}
	filled := allocator.Fill(allocCfg, current, fillCandidates)
	result.Filled = filled.Inserted

	plan, err := buildPlanResult(runID, AlgorithmAdjust, filled.Solution, evaluator, allocCfg)
	if err != nil {
		return nil, err
	}
	plan.InitialProfit = evaluator.TotalProfit(solution)
	plan.CandidateCount = pool.Len()
	plan.Duration = time.Since(started)
	result.Plan = plan

	logger.Info("Adjustment complete",
		zap.Int("applied", len(result.Applied)),
		zap.Int("rejected", len(result.Rejected)),
		zap.Int("filled", result.Filled),
		zap.Float64("initial_profit", plan.InitialProfit),
		zap.Float64("profit", plan.TotalProfit))

	return result, nil
}

// applyMove returns the solution with one instruction applied, or the reason it cannot be
func applyMove(problem *model.Problem, current model.Solution, move model.MoveInstruction, allocCfg allocator.Config) (model.Solution, error) {
	existing, ok := current.Find(move.AllocationID)
	if !ok {
		return model.Solution{}, fmt.Errorf("allocation %s not found", move.AllocationID)
	}

	switch move.Action {
	case model.MoveActionRemove:
		next := current.Without(existing.ID)
		if !allocator.KeepsTargets(current, next, allocCfg.MinQuantities) {
			return model.Solution{}, fmt.Errorf("removing allocation %s would leave crop %s below its minimum quantity", existing.ID, existing.Crop.ID)
		}
		return next, nil
	case model.MoveActionMove:
		moved, err := relocate(problem, existing, move)
		if err != nil {
			return model.Solution{}, err
		}
		if err := feasibility.CanPlace(current, moved.AllocationCandidate, existing.ID); err != nil {
			return model.Solution{}, err
		}
		state := &allocator.PlanState{
			Solution:      current.Without(existing.ID),
			Evaluator:     allocCfg.Evaluator,
			MinQuantities: allocCfg.MinQuantities,
		}
		for _, criterion := range allocCfg.Criteria {
			if !criterion.IsCandidateValid(state, moved.AllocationCandidate) {
				return model.Solution{}, fmt.Errorf("rejected by %s", criterion.Name())
			}
		}
		return current.Replace(existing.ID, moved), nil
	default:
		return model.Solution{}, fmt.Errorf("unknown action %q", move.Action)
	}
}

// relocate re-simulates growth for the allocation on its new field or start date.
// The quantity and allocation ID are kept.
func relocate(problem *model.Problem, a model.CropAllocation, move model.MoveInstruction) (model.CropAllocation, error) {
	field := a.Field
	if move.ToFieldID != "" {
		f, ok := problem.FieldByID(move.ToFieldID)
		if !ok {
			return model.CropAllocation{}, fmt.Errorf("unknown field %s", move.ToFieldID)
		}
		field = f
	}

	start := a.StartDate
	if move.ToStartDate != nil {
		start = thermal.Day(*move.ToStartDate)
	}
	if start.Before(problem.PlanningStart) || start.After(problem.PlanningEnd) {
		return model.CropAllocation{}, fmt.Errorf("start date %s is outside the planning horizon", start.Format(model.DateLayout))
	}

	profile, ok := problem.ProfileFor(a.Crop.ID)
	if !ok {
		return model.CropAllocation{}, fmt.Errorf("no growth profile for crop %s", a.Crop.ID)
	}
	series, err := thermal.NewSeries(problem.WeatherFor(field))
	if err != nil {
		return model.CropAllocation{}, fmt.Errorf("failed to index weather for field %s: %w", field.ID, err)
	}

	progress := thermal.Simulate(profile, series, start, problem.PlanningEnd)
	if !progress.Completed {
		return model.CropAllocation{}, fmt.Errorf("%s sown on %s does not complete on field %s before %s",
			a.Crop.ID, start.Format(model.DateLayout), field.ID, problem.PlanningEnd.Format(model.DateLayout))
	}

	c := a.AllocationCandidate
	c.Field = field
	c.StartDate = progress.StartDate
	c.CompletionDate = progress.CompletionDate
	c.GrowthDays = progress.GrowthDays
	c.AccumulatedGDD = progress.AccumulatedGDD
	c.YieldFactor = progress.YieldFactor
	c = c.WithQuantity(c.Quantity)

	return model.CropAllocation{ID: a.ID, AllocationCandidate: c}, nil
}
