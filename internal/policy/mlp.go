package policy

import "fmt"

const hiddenSize = 64

// MLP treats the observation as a flat vector.
type MLP struct {
	stateSize int
	posSize   int
	fc1       *dense
	fc2       *dense
	heads     heads
}

func newMLP(stateSize, nDrones, actionSize int) *MLP {
	in := stateSize + 2*nDrones
	return &MLP{
		stateSize: stateSize,
		posSize:   2 * nDrones,
		fc1:       newDense("fc1", in, hiddenSize),
		fc2:       newDense("fc2", hiddenSize, hiddenSize),
		heads:     newHeads(hiddenSize, actionSize),
	}
}

func (m *MLP) Forward(in Inputs) ([]float64, float64, error) {
	if in.Arch != ArchMLP {
		return nil, 0, fmt.Errorf("%w: MLP got %s inputs", ErrShapeMismatch, in.Arch)
	}
	obs, pos := in.flatObs(), in.flatPos()
	if len(obs) != m.stateSize || len(pos) != m.posSize {
		return nil, 0, fmt.Errorf("%w: MLP expects obs %d pos %d, got %d %d",
			ErrShapeMismatch, m.stateSize, m.posSize, len(obs), len(pos))
	}

	h := relu(m.fc1.forward(concat(obs, pos)))
	h = relu(m.fc2.forward(h))
	logits, value := m.heads.forward(h)
	return logits, value, nil
}

func (m *MLP) Parameters() []Parameter {
	ps := append(m.fc1.params(), m.fc2.params()...)
	return append(ps, m.heads.params()...)
}
