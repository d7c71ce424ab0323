package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/crop-planner/pkg/db"
)

const planRunColumns = `id, created_at, algorithm, planning_start, planning_end,
	total_profit, total_revenue, total_cost, initial_profit, did_not_converge, parent_run_id`

func scanPlanRun(row pgx.Row) (db.PlanRun, error) {
	var r db.PlanRun
	var parentRunID *string
	err := row.Scan(&r.ID, &r.CreatedAt, &r.Algorithm, &r.PlanningStart, &r.PlanningEnd,
		&r.TotalProfit, &r.TotalRevenue, &r.TotalCost, &r.InitialProfit, &r.DidNotConverge, &parentRunID)
	if err != nil {
		return r, err
	}
	if parentRunID != nil {
		r.ParentRunID = *parentRunID
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

// GetPlanRuns retrieves all plan runs, newest first
func (d *DB) GetPlanRuns(ctx context.Context) ([]db.PlanRun, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+planRunColumns+` FROM plan_run ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan runs: %w", err)
	}
	defer rows.Close()

	var runs []db.PlanRun
	for rows.Next() {
		r, err := scanPlanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan run: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plan runs: %w", err)
	}

	return runs, nil
}

// GetPlanRun retrieves a single plan run, returning db.ErrNotFound if it does not exist
func (d *DB) GetPlanRun(ctx context.Context, id string) (*db.PlanRun, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+planRunColumns+` FROM plan_run WHERE id = $1`, id)
	r, err := scanPlanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plan run %s: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan run: %w", err)
	}
	return &r, nil
}

// SavePlanRun inserts a plan run and its allocations in one transaction
func (d *DB) SavePlanRun(ctx context.Context, run *db.PlanRun, allocations []db.AllocationRecord) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var parentRunID *string
	if run.ParentRunID != "" {
		parentRunID = &run.ParentRunID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO plan_run (id, created_at, algorithm, planning_start, planning_end,
			total_profit, total_revenue, total_cost, initial_profit, did_not_converge, parent_run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, run.ID, run.CreatedAt.UTC(), run.Algorithm, run.PlanningStart, run.PlanningEnd,
		run.TotalProfit, run.TotalRevenue, run.TotalCost, run.InitialProfit, run.DidNotConverge, parentRunID)
	if err != nil {
		return fmt.Errorf("failed to insert plan run: %w", err)
	}

	if err := insertAllocations(ctx, tx, allocations); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
