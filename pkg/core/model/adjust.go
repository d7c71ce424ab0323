package model

import "time"

// MoveAction is what a manual adjustment does to an allocation
type MoveAction string

const (
	MoveActionMove   MoveAction = "move"
	MoveActionRemove MoveAction = "remove"
)

// MoveInstruction is one manual change to an existing plan. A move keeps the crop and
// quantity and changes the field, the start date, or both; an empty target keeps the
// current value.
type MoveInstruction struct {
	AllocationID string     `yaml:"allocationID" validate:"required"`
	Action       MoveAction `yaml:"action" validate:"oneof=move remove"`
	ToFieldID    string     `yaml:"toFieldID,omitempty"`
	ToStartDate  *time.Time `yaml:"toStartDate,omitempty"`
}
