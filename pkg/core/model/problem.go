package model

import (
	"fmt"
	"time"
)

// DefaultWeatherKey selects the weather series used when neither the field ID nor its
// region has one
const DefaultWeatherKey = "default"

// Problem bundles the read-only inputs of one planning run
type Problem struct {
	PlanningStart time.Time
	PlanningEnd   time.Time

	Fields   []Field
	Crops    []Crop
	Profiles []CropProfile
	Rules    []InteractionRule

	// Weather is keyed by field ID, region, or DefaultWeatherKey
	Weather map[string][]WeatherRecord

	CropTargets []CropTarget
}

// FieldByID looks up a field
func (p *Problem) FieldByID(id string) (Field, bool) {
	for _, f := range p.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// CropByID looks up a crop
func (p *Problem) CropByID(id string) (Crop, bool) {
	for _, c := range p.Crops {
		if c.ID == id {
			return c, true
		}
	}
	return Crop{}, false
}

// ProfileFor returns the growth profile for a crop
func (p *Problem) ProfileFor(cropID string) (CropProfile, bool) {
	for _, profile := range p.Profiles {
		if profile.CropID == cropID {
			return profile, true
		}
	}
	return CropProfile{}, false
}

// WeatherFor resolves the weather series for a field: field ID first, then region,
// then the default series
func (p *Problem) WeatherFor(field Field) []WeatherRecord {
	if records, ok := p.Weather[field.ID]; ok {
		return records
	}
	if field.Region != "" {
		if records, ok := p.Weather[field.Region]; ok {
			return records
		}
	}
	return p.Weather[DefaultWeatherKey]
}

// MinQuantities returns the minimum quantity target per crop ID
func (p *Problem) MinQuantities() map[string]float64 {
	targets := make(map[string]float64, len(p.CropTargets))
	for _, t := range p.CropTargets {
		targets[t.CropID] += t.MinQuantity
	}
	return targets
}

// CheckReferences verifies that IDs are unique and that profiles and targets refer to
// known crops
func (p *Problem) CheckReferences() error {
	if !p.PlanningEnd.After(p.PlanningStart) {
		return fmt.Errorf("planning end %s must be after planning start %s",
			p.PlanningEnd.Format(DateLayout), p.PlanningStart.Format(DateLayout))
	}

	fieldIDs := make(map[string]bool, len(p.Fields))
	for _, f := range p.Fields {
		if fieldIDs[f.ID] {
			return fmt.Errorf("duplicate field id %q", f.ID)
		}
		fieldIDs[f.ID] = true
	}

	cropIDs := make(map[string]bool, len(p.Crops))
	for _, c := range p.Crops {
		if cropIDs[c.ID] {
			return fmt.Errorf("duplicate crop id %q", c.ID)
		}
		cropIDs[c.ID] = true
	}

	for _, profile := range p.Profiles {
		if !cropIDs[profile.CropID] {
			return fmt.Errorf("profile refers to unknown crop %q", profile.CropID)
		}
	}

	for _, target := range p.CropTargets {
		if !cropIDs[target.CropID] {
			return fmt.Errorf("crop target refers to unknown crop %q", target.CropID)
		}
	}

	return nil
}
