package db

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// PlanRunStore defines the interface for plan run operations
type PlanRunStore interface {
	GetPlanRuns(ctx context.Context) ([]PlanRun, error)
	GetPlanRun(ctx context.Context, id string) (*PlanRun, error)
}

// AllocationStore defines the interface for allocation operations
type AllocationStore interface {
	GetAllocations(ctx context.Context, runID string) ([]AllocationRecord, error)
}

// PlanStore defines every persistence operation the planner needs. A run and its
// allocations are written together so a partially saved plan is never visible.
type PlanStore interface {
	PlanRunStore
	AllocationStore
	SavePlanRun(ctx context.Context, run *PlanRun, allocations []AllocationRecord) error
}
