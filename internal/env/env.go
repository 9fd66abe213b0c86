// Package env provides the grid-world drone environment the evaluator rolls
// policies out against.
package env

import (
	"errors"
	"fmt"
)

// ErrInvalidAction is returned when a joint action does not fit the action space.
var ErrInvalidAction = errors.New("invalid action")

// Action is a discrete drone move.
type Action int

const (
	ActionStay Action = iota
	ActionUp
	ActionDown
	ActionLeft
	ActionRight

	numActions
)

func (a Action) String() string {
	switch a {
	case ActionStay:
		return "stay"
	case ActionUp:
		return "up"
	case ActionDown:
		return "down"
	case ActionLeft:
		return "left"
	case ActionRight:
		return "right"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Position is a drone's grid coordinate.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Position) String() string {
	return fmt.Sprintf("[%d, %d]", p.Row, p.Col)
}

// StepResult is what the environment hands back after a joint action.
type StepResult struct {
	Observation []float64
	Reward      float64
	Done        bool
}

// Environment is the contract the rollout loop relies on.
type Environment interface {
	// StateSize is the length of a flattened observation.
	StateSize() int
	// ActionSize is the number of discrete actions per drone.
	ActionSize() int
	NumDrones() int
	// DronePositions returns a copy of the current drone coordinates.
	DronePositions() []Position
	Reset() []float64
	// Step applies one action per drone.
	Step(actions []int) (StepResult, error)
}
