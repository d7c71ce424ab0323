package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func day(s string) time.Time {
	t, _ := time.Parse(DateLayout, s)
	return t
}

func TestSolution_MutatorsLeaveReceiverUntouched(t *testing.T) {
	a := CropAllocation{ID: "a", AllocationCandidate: AllocationCandidate{Field: Field{ID: "f1"}, StartDate: day("2024-04-01")}}
	b := CropAllocation{ID: "b", AllocationCandidate: AllocationCandidate{Field: Field{ID: "f2"}, StartDate: day("2024-03-01")}}

	base := NewSolution(a)
	withB := base.With(b)
	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, withB.Len())

	without := withB.Without("a")
	assert.Equal(t, 2, withB.Len())
	require.Equal(t, 1, without.Len())
	assert.Equal(t, "b", without.Allocations[0].ID)

	replaced := withB.Replace("a", CropAllocation{ID: "c"})
	assert.Equal(t, "a", withB.Allocations[0].ID)
	assert.Equal(t, "c", replaced.Allocations[0].ID)
}

func TestSolution_SortedByStart(t *testing.T) {
	sol := NewSolution(
		CropAllocation{ID: "late", AllocationCandidate: AllocationCandidate{StartDate: day("2024-06-01")}},
		CropAllocation{ID: "early", AllocationCandidate: AllocationCandidate{StartDate: day("2024-03-01")}},
	)
	sorted := sol.SortedByStart()
	assert.Equal(t, "early", sorted[0].ID)
	assert.Equal(t, "late", sorted[1].ID)
	assert.Equal(t, "late", sol.Allocations[0].ID, "receiver order is preserved")
}

func TestNewAllocation_AssignsDistinctIDs(t *testing.T) {
	c := AllocationCandidate{Field: Field{ID: "f1"}}
	a := NewAllocation(c)
	b := NewAllocation(c)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Key(), b.Key())
}

func TestInteractionRule_Applies(t *testing.T) {
	tomato := Crop{ID: "tomato", Groups: []string{"Solanaceae"}}
	cabbage := Crop{ID: "cabbage", Groups: []string{"Brassicaceae"}}

	directional := InteractionRule{SourceGroup: "Solanaceae", TargetGroup: "Brassicaceae", ImpactRatio: 1.1, IsDirectional: true}
	assert.True(t, directional.Applies(tomato, cabbage))
	assert.False(t, directional.Applies(cabbage, tomato))

	symmetric := directional
	symmetric.IsDirectional = false
	assert.True(t, symmetric.Applies(cabbage, tomato))
}

func TestField_UnmarshalYAMLDefaultsFallow(t *testing.T) {
	var fields []Field
	err := yaml.Unmarshal([]byte(`
- id: f1
  area: 1000
- id: f2
  area: 500
  fallowPeriodDays: 0
`), &fields)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, DefaultFallowPeriodDays, fields[0].FallowPeriodDays)
	assert.Equal(t, 0, fields[1].FallowPeriodDays)
}

func TestCandidate_WithQuantity(t *testing.T) {
	c := AllocationCandidate{
		Field: Field{ID: "f1", Area: 1000},
		Crop:  Crop{ID: "c1", AreaPerUnit: 0.25},
	}.WithQuantity(2000)
	assert.InDelta(t, 500.0, c.AreaUsed, 1e-9)
	assert.InDelta(t, 0.5, c.QuantityLevel, 1e-9)
}

func TestProblem_WeatherForFallsBack(t *testing.T) {
	regional := []WeatherRecord{{Date: day("2024-01-01"), TempMean: 10}}
	fallback := []WeatherRecord{{Date: day("2024-01-01"), TempMean: 5}}
	p := &Problem{Weather: map[string][]WeatherRecord{
		"north":           regional,
		DefaultWeatherKey: fallback,
	}}

	assert.Equal(t, regional, p.WeatherFor(Field{ID: "f1", Region: "north"}))
	assert.Equal(t, fallback, p.WeatherFor(Field{ID: "f2", Region: "south"}))
}

func TestProblem_CheckReferences(t *testing.T) {
	p := &Problem{
		PlanningStart: day("2024-01-01"),
		PlanningEnd:   day("2024-12-31"),
		Crops:         []Crop{{ID: "c1"}},
		Profiles:      []CropProfile{{CropID: "c2"}},
	}
	err := p.CheckReferences()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown crop")
}
