package model

import (
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFallowPeriodDays is applied to fields that do not declare a fallow period
const DefaultFallowPeriodDays = 28

// Field is a physical plot that crops are allocated to
type Field struct {
	ID             string  `yaml:"id" validate:"required"`
	Name           string  `yaml:"name"`
	Area           float64 `yaml:"area" validate:"gt=0"`
	DailyFixedCost float64 `yaml:"dailyFixedCost" validate:"gte=0"`

	// FallowPeriodDays is the mandatory rest interval after an allocation vacates the field
	FallowPeriodDays int `yaml:"fallowPeriodDays" validate:"gte=0"`

	// Region selects a shared weather series when no field-specific series exists
	Region string `yaml:"region,omitempty"`
}

// UnmarshalYAML defaults FallowPeriodDays when the key is absent
func (f *Field) UnmarshalYAML(value *yaml.Node) error {
	type plain Field
	raw := plain{FallowPeriodDays: DefaultFallowPeriodDays}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*f = Field(raw)
	return nil
}

// Crop is a plantable variety with its market parameters
type Crop struct {
	ID             string  `yaml:"id" validate:"required"`
	Name           string  `yaml:"name"`
	AreaPerUnit    float64 `yaml:"areaPerUnit" validate:"gt=0"`
	Variety        string  `yaml:"variety,omitempty"`
	RevenuePerArea float64 `yaml:"revenuePerArea" validate:"gte=0"`

	// MaxRevenue caps cumulative revenue for this crop across the whole plan (nil = uncapped)
	MaxRevenue *float64 `yaml:"maxRevenue,omitempty" validate:"omitempty,gt=0"`

	// Groups carries botanical family tags used by interaction rules (e.g. "Solanaceae")
	Groups []string `yaml:"groups,omitempty"`
}

// InGroup reports whether the crop carries the given group tag
func (c Crop) InGroup(group string) bool {
	return slices.Contains(c.Groups, group)
}

// SharesGroup reports whether two crops have at least one group tag in common
func (c Crop) SharesGroup(other Crop) bool {
	for _, g := range c.Groups {
		if other.InGroup(g) {
			return true
		}
	}
	return false
}

// TemperatureProfile describes how a growth stage responds to temperature
type TemperatureProfile struct {
	// BaseTemperature is the development threshold; days below it accumulate no GDD
	BaseTemperature float64 `yaml:"baseTemperature"`

	// OptimalMax is the mean temperature above which development slows (nil = no slowdown)
	OptimalMax *float64 `yaml:"optimalMax,omitempty"`

	// MaxTemperature is the mean temperature at which development stops (nil = no cutoff)
	MaxTemperature *float64 `yaml:"maxTemperature,omitempty"`

	// LowStressThreshold: a day whose minimum is below this counts as cold stress
	LowStressThreshold *float64 `yaml:"lowStressThreshold,omitempty"`

	// HighStressThreshold: a day whose maximum is above this counts as heat stress
	HighStressThreshold *float64 `yaml:"highStressThreshold,omitempty"`

	// StressYieldImpact is the yield fraction lost per stress day in this stage
	StressYieldImpact float64 `yaml:"stressYieldImpact" validate:"gte=0,lte=1"`
}

// GrowthStage is one phase of a crop's development
type GrowthStage struct {
	Name        string  `yaml:"name" validate:"required"`
	RequiredGDD float64 `yaml:"requiredGDD" validate:"gt=0"`

	// HarvestStartGDD marks the point within this stage at which harvesting can begin
	// (continuous-harvest crops only)
	HarvestStartGDD *float64 `yaml:"harvestStartGDD,omitempty" validate:"omitempty,gt=0"`

	Temperature TemperatureProfile `yaml:"temperature"`
}

// CropProfile is the ordered sequence of growth stages for a crop
type CropProfile struct {
	CropID string        `yaml:"cropID" validate:"required"`
	Stages []GrowthStage `yaml:"stages" validate:"required,min=1,dive"`
}

// TotalRequiredGDD returns the thermal time needed to complete every stage
func (p CropProfile) TotalRequiredGDD() float64 {
	total := 0.0
	for _, stage := range p.Stages {
		total += stage.RequiredGDD
	}
	return total
}

// WeatherRecord is one day of observed or forecast weather
type WeatherRecord struct {
	Date     time.Time `yaml:"date"`
	TempMean float64   `yaml:"tempMean"`
	TempMin  float64   `yaml:"tempMin"`
	TempMax  float64   `yaml:"tempMax"`
}

// RuleType classifies an interaction rule
type RuleType string

const (
	RuleContinuousCultivation RuleType = "continuous_cultivation"
	RuleRotation              RuleType = "rotation"
)

// InteractionRule is a revenue multiplier applied when a crop from TargetGroup follows
// a crop from SourceGroup on the same field
type InteractionRule struct {
	Type          RuleType `yaml:"type" validate:"oneof=continuous_cultivation rotation"`
	SourceGroup   string   `yaml:"sourceGroup" validate:"required"`
	TargetGroup   string   `yaml:"targetGroup" validate:"required"`
	ImpactRatio   float64  `yaml:"impactRatio" validate:"gte=0"`
	IsDirectional bool     `yaml:"isDirectional"`
}

// Applies reports whether the rule fires when next follows previous on a field
func (r InteractionRule) Applies(previous, next Crop) bool {
	if previous.InGroup(r.SourceGroup) && next.InGroup(r.TargetGroup) {
		return true
	}
	if r.IsDirectional {
		return false
	}
	return previous.InGroup(r.TargetGroup) && next.InGroup(r.SourceGroup)
}

// CropTarget is a minimum planted quantity for a crop across the plan
type CropTarget struct {
	CropID      string  `yaml:"cropID" validate:"required"`
	MinQuantity float64 `yaml:"minQuantity" validate:"gte=0"`
}

// AllocationCandidate is a schedulable field x crop x period x quantity option.
// Revenue and profit are not stored: they depend on the solution the candidate joins.
type AllocationCandidate struct {
	Field          Field
	Crop           Crop
	StartDate      time.Time
	CompletionDate time.Time

	// GrowthDays counts calendar days from StartDate to CompletionDate inclusive
	GrowthDays     int
	AccumulatedGDD float64

	Quantity float64
	AreaUsed float64

	// YieldFactor in [0,1] scales realized revenue for temperature stress
	YieldFactor float64

	// QuantityLevel is the fraction of field capacity this candidate was generated at
	QuantityLevel float64

	// PeriodRank is the position of the cultivation window in the growth-window ranking (0 = best)
	PeriodRank int
}

// Key identifies the candidate by its defining attributes
func (c AllocationCandidate) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%g",
		c.Field.ID, c.Crop.ID,
		c.StartDate.Format(DateLayout), c.CompletionDate.Format(DateLayout),
		c.Quantity)
}

// WithQuantity returns a copy with the quantity and area used recalculated
func (c AllocationCandidate) WithQuantity(quantity float64) AllocationCandidate {
	c.Quantity = quantity
	c.AreaUsed = quantity * c.Crop.AreaPerUnit
	if c.Field.Area > 0 {
		c.QuantityLevel = c.AreaUsed / c.Field.Area
	}
	return c
}

// FallowEnd is the last day the field is unavailable after this candidate
func (c AllocationCandidate) FallowEnd() time.Time {
	return c.CompletionDate.AddDate(0, 0, c.Field.FallowPeriodDays)
}

// Covers reports whether the candidate occupies the field on the given day
func (c AllocationCandidate) Covers(day time.Time) bool {
	return !day.Before(c.StartDate) && !day.After(c.CompletionDate)
}

// Intersects reports whether the cultivation windows (without fallow) share a day
func (c AllocationCandidate) Intersects(other AllocationCandidate) bool {
	return !c.CompletionDate.Before(other.StartDate) && !other.CompletionDate.Before(c.StartDate)
}

// DateLayout is the calendar date format used across the planner
const DateLayout = "2006-01-02"
