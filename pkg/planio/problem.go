// Package planio reads planning inputs from disk: the problem document, weather series
// and manual adjustment instructions.
package planio

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jakechorley/crop-planner/pkg/core/model"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// problemDocument is the on-disk shape of a planning problem
type problemDocument struct {
	PlanningStart string `yaml:"planningStart" validate:"required,datetime=2006-01-02"`
	PlanningEnd   string `yaml:"planningEnd" validate:"required,datetime=2006-01-02"`

	Fields      []model.Field           `yaml:"fields" validate:"required,min=1,dive"`
	Crops       []model.Crop            `yaml:"crops" validate:"required,min=1,dive"`
	Profiles    []model.CropProfile     `yaml:"profiles" validate:"dive"`
	Rules       []model.InteractionRule `yaml:"rules,omitempty" validate:"dive"`
	CropTargets []model.CropTarget      `yaml:"cropTargets,omitempty" validate:"dive"`

	// Weather holds inline series keyed by field ID, region or "default"
	Weather map[string][]weatherEntry `yaml:"weather,omitempty" validate:"dive,dive"`

	// WeatherFiles maps the same keys to .csv or .xlsx files, relative to the document
	WeatherFiles map[string]string `yaml:"weatherFiles,omitempty" validate:"dive,required"`
}

type weatherEntry struct {
	Date     string  `yaml:"date" validate:"required,datetime=2006-01-02"`
	TempMean float64 `yaml:"tempMean"`
	TempMin  float64 `yaml:"tempMin"`
	TempMax  float64 `yaml:"tempMax"`
}

// LoadProblem reads and validates a planning problem from a YAML file
func LoadProblem(path string) (*model.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read problem file: %w", err)
	}

	problem, err := ParseProblem(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return problem, nil
}

// ParseProblem decodes a problem document. Weather file paths are resolved against baseDir.
func ParseProblem(data []byte, baseDir string) (*model.Problem, error) {
	var doc problemDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse problem: %w", err)
	}

	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("problem validation failed: %w", err)
	}

	start, _ := time.Parse(model.DateLayout, doc.PlanningStart)
	end, _ := time.Parse(model.DateLayout, doc.PlanningEnd)

	problem := &model.Problem{
		PlanningStart: start,
		PlanningEnd:   end,
		Fields:        doc.Fields,
		Crops:         doc.Crops,
		Profiles:      doc.Profiles,
		Rules:         doc.Rules,
		CropTargets:   doc.CropTargets,
		Weather:       make(map[string][]model.WeatherRecord),
	}

	for key, entries := range doc.Weather {
		records := make([]model.WeatherRecord, len(entries))
		for i, e := range entries {
			date, _ := time.Parse(model.DateLayout, e.Date)
			records[i] = model.WeatherRecord{Date: date, TempMean: e.TempMean, TempMin: e.TempMin, TempMax: e.TempMax}
		}
		slices.SortStableFunc(records, func(a, b model.WeatherRecord) int {
			return a.Date.Compare(b.Date)
		})
		problem.Weather[key] = records
	}

	for key, file := range doc.WeatherFiles {
		if _, ok := problem.Weather[key]; ok {
			return nil, fmt.Errorf("weather %q is defined both inline and in weatherFiles", key)
		}
		if !filepath.IsAbs(file) {
			file = filepath.Join(baseDir, file)
		}
		records, err := LoadWeatherFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load weather %q: %w", key, err)
		}
		problem.Weather[key] = records
	}

	if err := problem.CheckReferences(); err != nil {
		return nil, fmt.Errorf("problem validation failed: %w", err)
	}

	return problem, nil
}
