package policy

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cartridge/evaluator/internal/env"
)

// Inputs is one batch-of-one network input.
type Inputs struct {
	Arch Architecture
	// Obs is 1×state_size for MLP and grid×grid for CNN/Attn.
	Obs *mat.Dense
	// Pos is 1×(2·n_drones), drone coordinates flattened row-major.
	Pos *mat.Dense
}

// ObsShape reports the observation tensor shape including the batch axis.
func (in Inputs) ObsShape() []int {
	r, c := in.Obs.Dims()
	if in.Arch == ArchMLP {
		return []int{r, c}
	}
	return []int{1, r, c}
}

// PosShape reports the position tensor shape.
func (in Inputs) PosShape() []int {
	r, c := in.Pos.Dims()
	return []int{r, c}
}

// PrepareInputs reshapes a raw observation and drone positions into the
// layout the architecture expects. It does not modify its arguments.
func PrepareInputs(arch Architecture, gridSize int, obs []float64, positions []env.Position, nDrones, obsSize int) (Inputs, error) {
	var obsMat *mat.Dense
	switch arch {
	case ArchMLP:
		if obsSize <= 0 || len(obs) != obsSize {
			return Inputs{}, fmt.Errorf("%w: cannot reshape %d values into (1, %d)", ErrShapeMismatch, len(obs), obsSize)
		}
		obsMat = mat.NewDense(1, obsSize, append([]float64(nil), obs...))
	case ArchCNN, ArchAttn:
		if gridSize <= 0 || len(obs) != gridSize*gridSize {
			return Inputs{}, fmt.Errorf("%w: cannot reshape %d values into (1, %d, %d)", ErrShapeMismatch, len(obs), gridSize, gridSize)
		}
		obsMat = mat.NewDense(gridSize, gridSize, append([]float64(nil), obs...))
	default:
		return Inputs{}, fmt.Errorf("%w: %q", ErrUnknownArchitecture, arch)
	}

	if nDrones <= 0 || len(positions) != nDrones {
		return Inputs{}, fmt.Errorf("%w: cannot reshape %d positions into (%d, 2)", ErrShapeMismatch, len(positions), nDrones)
	}
	flat := make([]float64, 0, 2*nDrones)
	for _, p := range positions {
		flat = append(flat, float64(p.Row), float64(p.Col))
	}

	return Inputs{
		Arch: arch,
		Obs:  obsMat,
		Pos:  mat.NewDense(1, len(flat), flat),
	}, nil
}

// flatObs returns the observation as a single row regardless of layout.
func (in Inputs) flatObs() []float64 {
	r, c := in.Obs.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, in.Obs.RawRowView(i)...)
	}
	return out
}

func (in Inputs) flatPos() []float64 {
	return in.Pos.RawRowView(0)
}
