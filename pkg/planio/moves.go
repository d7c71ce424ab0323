package planio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jakechorley/crop-planner/pkg/core/model"
	"github.com/jakechorley/crop-planner/pkg/core/thermal"
)

type movesDocument struct {
	Moves []model.MoveInstruction `yaml:"moves" validate:"required,min=1,dive"`
}

// LoadMoves reads manual adjustment instructions from a YAML file
func LoadMoves(path string) ([]model.MoveInstruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read moves file: %w", err)
	}
	return ParseMoves(data)
}

// ParseMoves decodes a moves document of the form {moves: [...]}
func ParseMoves(data []byte) ([]model.MoveInstruction, error) {
	var doc movesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse moves: %w", err)
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("moves validation failed: %w", err)
	}

	for i, m := range doc.Moves {
		if m.Action == model.MoveActionMove && m.ToFieldID == "" && m.ToStartDate == nil {
			return nil, fmt.Errorf("move %d (%s) has neither toFieldID nor toStartDate", i, m.AllocationID)
		}
		if m.ToStartDate != nil {
			day := thermal.Day(*m.ToStartDate)
			doc.Moves[i].ToStartDate = &day
		}
	}
	return doc.Moves, nil
}
