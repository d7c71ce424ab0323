package candidates

import (
	"math"
	"time"

	"github.com/jakechorley/crop-planner/pkg/core/model"
	"github.com/jakechorley/crop-planner/pkg/core/thermal"
)

type pairKey struct {
	fieldID string
	cropID  string
}

// Pool is an immutable, indexed set of allocation candidates.
// Slices returned by its methods must not be modified.
type Pool struct {
	candidates []model.AllocationCandidate
	byPair     map[pairKey][]int
	byCrop     map[string][]int
	byField    map[string][]int
}

// NewPool indexes the candidates
func NewPool(candidates []model.AllocationCandidate) *Pool {
	p := &Pool{
		candidates: candidates,
		byPair:     make(map[pairKey][]int),
		byCrop:     make(map[string][]int),
		byField:    make(map[string][]int),
	}
	for i, c := range candidates {
		key := pairKey{fieldID: c.Field.ID, cropID: c.Crop.ID}
		p.byPair[key] = append(p.byPair[key], i)
		p.byCrop[c.Crop.ID] = append(p.byCrop[c.Crop.ID], i)
		p.byField[c.Field.ID] = append(p.byField[c.Field.ID], i)
	}
	return p
}

// All returns every candidate in generation order
func (p *Pool) All() []model.AllocationCandidate {
	return p.candidates
}

// Len returns the number of candidates
func (p *Pool) Len() int {
	return len(p.candidates)
}

func (p *Pool) pick(indices []int) []model.AllocationCandidate {
	out := make([]model.AllocationCandidate, len(indices))
	for i, idx := range indices {
		out[i] = p.candidates[idx]
	}
	return out
}

// ForFieldCrop returns the candidates for one field x crop pair
func (p *Pool) ForFieldCrop(fieldID, cropID string) []model.AllocationCandidate {
	return p.pick(p.byPair[pairKey{fieldID: fieldID, cropID: cropID}])
}

// ForCrop returns every candidate for a crop across all fields
func (p *Pool) ForCrop(cropID string) []model.AllocationCandidate {
	return p.pick(p.byCrop[cropID])
}

// ForField returns every candidate on a field
func (p *Pool) ForField(fieldID string) []model.AllocationCandidate {
	return p.pick(p.byField[fieldID])
}

// Closest returns the candidate for a field x crop pair whose start date is nearest to
// start, breaking ties by the nearest quantity level
func (p *Pool) Closest(fieldID, cropID string, start time.Time, level float64) (model.AllocationCandidate, bool) {
	indices := p.byPair[pairKey{fieldID: fieldID, cropID: cropID}]
	if len(indices) == 0 {
		return model.AllocationCandidate{}, false
	}

	best := -1
	bestDays, bestLevel := math.MaxInt, math.MaxFloat64
	for _, idx := range indices {
		c := p.candidates[idx]
		days := thermal.DaysBetween(start, c.StartDate)
		if days < 0 {
			days = -days
		}
		levelDiff := math.Abs(c.QuantityLevel - level)
		if days < bestDays || (days == bestDays && levelDiff < bestLevel) {
			best, bestDays, bestLevel = idx, days, levelDiff
		}
	}
	return p.candidates[best], true
}

// Unused returns the candidates whose key does not appear in the solution
func (p *Pool) Unused(solution model.Solution) []model.AllocationCandidate {
	used := solution.UsedKeys()
	var out []model.AllocationCandidate
	for _, c := range p.candidates {
		if !used[c.Key()] {
			out = append(out, c)
		}
	}
	return out
}

// Alternatives returns the other candidates for the same field x crop pair
func (p *Pool) Alternatives(c model.AllocationCandidate) []model.AllocationCandidate {
	key := c.Key()
	var out []model.AllocationCandidate
	for _, idx := range p.byPair[pairKey{fieldID: c.Field.ID, cropID: c.Crop.ID}] {
		if p.candidates[idx].Key() != key {
			out = append(out, p.candidates[idx])
		}
	}
	return out
}
