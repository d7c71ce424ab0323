package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/crop-planner/pkg/db"
)

// GetAllocations retrieves the allocations of a plan run ordered by field and start date
func (d *DB) GetAllocations(ctx context.Context, runID string) ([]db.AllocationRecord, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, run_id, field_id, crop_id, start_date, completion_date, growth_days,
			accumulated_gdd, quantity, area_used, yield_factor, quantity_level, period_rank,
			cost, revenue, profit
		FROM allocation
		WHERE run_id = $1
		ORDER BY field_id, start_date, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocations []db.AllocationRecord
	for rows.Next() {
		var a db.AllocationRecord
		if err := rows.Scan(&a.ID, &a.RunID, &a.FieldID, &a.CropID, &a.StartDate, &a.CompletionDate,
			&a.GrowthDays, &a.AccumulatedGDD, &a.Quantity, &a.AreaUsed, &a.YieldFactor,
			&a.QuantityLevel, &a.PeriodRank, &a.Cost, &a.Revenue, &a.Profit); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocations = append(allocations, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations: %w", err)
	}

	return allocations, nil
}

// insertAllocations queues every allocation in a single batch on the run's transaction
func insertAllocations(ctx context.Context, tx pgx.Tx, allocations []db.AllocationRecord) error {
	if len(allocations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range allocations {
		batch.Queue(`
			INSERT INTO allocation (id, run_id, field_id, crop_id, start_date, completion_date,
				growth_days, accumulated_gdd, quantity, area_used, yield_factor, quantity_level,
				period_rank, cost, revenue, profit)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`, a.ID, a.RunID, a.FieldID, a.CropID, a.StartDate, a.CompletionDate,
			a.GrowthDays, a.AccumulatedGDD, a.Quantity, a.AreaUsed, a.YieldFactor, a.QuantityLevel,
			a.PeriodRank, a.Cost, a.Revenue, a.Profit)
	}

	results := tx.SendBatch(ctx, batch)
	for range allocations {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to insert allocation: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to insert allocations: %w", err)
	}
	return nil
}
