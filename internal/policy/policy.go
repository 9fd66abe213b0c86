// Package policy provides the actor-critic networks that pick drone actions,
// the input shaping they expect and the checkpoint codec they load from.
package policy

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownArchitecture is returned for policy names other than MLP, CNN and Attn.
	ErrUnknownArchitecture = errors.New("unknown policy architecture")
	// ErrShapeMismatch indicates inputs or weights whose shape does not fit the network.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Architecture names a network family.
type Architecture string

const (
	ArchMLP  Architecture = "MLP"
	ArchCNN  Architecture = "CNN"
	ArchAttn Architecture = "Attn"
)

// ParseArchitecture maps a --policy value onto a known architecture.
func ParseArchitecture(name string) (Architecture, error) {
	switch a := Architecture(name); a {
	case ArchMLP, ArchCNN, ArchAttn:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownArchitecture, name)
	}
}

// Network is an actor-critic policy: logits over actions plus a state value.
type Network interface {
	// Forward runs one inference over prepared inputs.
	Forward(in Inputs) (logits []float64, value float64, err error)
	// Parameters lists the named weight tensors in state-dict order.
	Parameters() []Parameter
}

// Parameter is a named weight tensor. Data aliases the network's storage.
type Parameter struct {
	Name  string
	Shape []int
	Data  []float64
	// FanIn scales random initialisation.
	FanIn int
}

// New builds an untrained network of the given family.
func New(arch Architecture, stateSize, nDrones, actionSize int) (Network, error) {
	if stateSize <= 0 || actionSize <= 0 || nDrones < 0 {
		return nil, fmt.Errorf("%w: state=%d drones=%d actions=%d", ErrShapeMismatch, stateSize, nDrones, actionSize)
	}
	switch arch {
	case ArchMLP:
		return newMLP(stateSize, nDrones, actionSize), nil
	case ArchCNN:
		side, err := gridSide(stateSize)
		if err != nil {
			return nil, err
		}
		return newCNN(side, nDrones, actionSize), nil
	case ArchAttn:
		side, err := gridSide(stateSize)
		if err != nil {
			return nil, err
		}
		return newAttention(side, nDrones, actionSize), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownArchitecture, arch)
	}
}

func gridSide(stateSize int) (int, error) {
	side := 1
	for side*side < stateSize {
		side++
	}
	if side*side != stateSize {
		return 0, fmt.Errorf("%w: state size %d is not a square grid", ErrShapeMismatch, stateSize)
	}
	return side, nil
}
