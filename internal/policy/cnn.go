package policy

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	convFilters = 8
	convKernel  = 3
)

// CNN convolves the observation grid before the dense stage.
type CNN struct {
	side    int
	posSize int
	// convW is filters×(k·k), one kernel per row; convB is per filter.
	convW *mat.Dense
	convB *mat.VecDense
	fc    *dense
	heads heads
}

func newCNN(side, nDrones, actionSize int) *CNN {
	flat := convFilters * side * side
	return &CNN{
		side:    side,
		posSize: 2 * nDrones,
		convW:   mat.NewDense(convFilters, convKernel*convKernel, nil),
		convB:   mat.NewVecDense(convFilters, nil),
		fc:      newDense("fc", flat+2*nDrones, hiddenSize),
		heads:   newHeads(hiddenSize, actionSize),
	}
}

func (c *CNN) Forward(in Inputs) ([]float64, float64, error) {
	if in.Arch != ArchCNN {
		return nil, 0, fmt.Errorf("%w: CNN got %s inputs", ErrShapeMismatch, in.Arch)
	}
	r, cols := in.Obs.Dims()
	pos := in.flatPos()
	if r != c.side || cols != c.side || len(pos) != c.posSize {
		return nil, 0, fmt.Errorf("%w: CNN expects %dx%d grid and %d positions, got %dx%d and %d",
			ErrShapeMismatch, c.side, c.side, c.posSize, r, cols, len(pos))
	}

	h := relu(c.fc.forward(concat(relu(c.conv(in.Obs)), pos)))
	logits, value := c.heads.forward(h)
	return logits, value, nil
}

// conv is a same-padded 3×3 convolution, output laid out filter-major.
func (c *CNN) conv(grid *mat.Dense) []float64 {
	pad := convKernel / 2
	out := make([]float64, 0, convFilters*c.side*c.side)
	for f := 0; f < convFilters; f++ {
		kernel := c.convW.RawRowView(f)
		bias := c.convB.AtVec(f)
		for i := 0; i < c.side; i++ {
			for j := 0; j < c.side; j++ {
				sum := bias
				for ki := 0; ki < convKernel; ki++ {
					for kj := 0; kj < convKernel; kj++ {
						r, col := i+ki-pad, j+kj-pad
						if r < 0 || r >= c.side || col < 0 || col >= c.side {
							continue
						}
						sum += kernel[ki*convKernel+kj] * grid.At(r, col)
					}
				}
				out = append(out, sum)
			}
		}
	}
	return out
}

func (c *CNN) Parameters() []Parameter {
	fanIn := convKernel * convKernel
	ps := []Parameter{
		{Name: "conv.weight", Shape: []int{convFilters, 1, convKernel, convKernel}, Data: c.convW.RawMatrix().Data, FanIn: fanIn},
		{Name: "conv.bias", Shape: []int{convFilters}, Data: c.convB.RawVector().Data, FanIn: fanIn},
	}
	ps = append(ps, c.fc.params()...)
	return append(ps, c.heads.params()...)
}
