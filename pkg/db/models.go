package db

import "time"

// PlanRun is one saved optimization or adjustment run
type PlanRun struct {
	ID        string
	CreatedAt time.Time
	Algorithm string

	PlanningStart time.Time
	PlanningEnd   time.Time

	TotalProfit   float64
	TotalRevenue  float64
	TotalCost     float64
	InitialProfit float64

	DidNotConverge bool

	// ParentRunID is set on runs produced by adjusting an earlier run
	ParentRunID string
}

// AllocationRecord is one saved crop allocation with its economics at save time
type AllocationRecord struct {
	ID             string
	RunID          string
	FieldID        string
	CropID         string
	StartDate      time.Time
	CompletionDate time.Time
	GrowthDays     int
	AccumulatedGDD float64
	Quantity       float64
	AreaUsed       float64
	YieldFactor    float64
	QuantityLevel  float64
	PeriodRank     int

	Cost    float64
	Revenue float64
	Profit  float64
}
