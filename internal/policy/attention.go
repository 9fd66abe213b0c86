package policy

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const attnDim = 16

// Attention runs single-head self-attention over the grid rows.
type Attention struct {
	side    int
	posSize int
	query   *dense
	key     *dense
	value   *dense
	fc      *dense
	heads   heads
}

func newAttention(side, nDrones, actionSize int) *Attention {
	return &Attention{
		side:    side,
		posSize: 2 * nDrones,
		query:   newDense("attn.query", side, attnDim),
		key:     newDense("attn.key", side, attnDim),
		value:   newDense("attn.value", side, attnDim),
		fc:      newDense("fc", attnDim+2*nDrones, hiddenSize),
		heads:   newHeads(hiddenSize, actionSize),
	}
}

func (a *Attention) Forward(in Inputs) ([]float64, float64, error) {
	if in.Arch != ArchAttn {
		return nil, 0, fmt.Errorf("%w: Attn got %s inputs", ErrShapeMismatch, in.Arch)
	}
	r, c := in.Obs.Dims()
	pos := in.flatPos()
	if r != a.side || c != a.side || len(pos) != a.posSize {
		return nil, 0, fmt.Errorf("%w: Attn expects %dx%d grid and %d positions, got %dx%d and %d",
			ErrShapeMismatch, a.side, a.side, a.posSize, r, c, len(pos))
	}

	q := a.query.forwardRows(in.Obs)
	k := a.key.forwardRows(in.Obs)
	v := a.value.forwardRows(in.Obs)

	scores := mat.NewDense(a.side, a.side, nil)
	scores.Mul(q, k.T())
	scores.Scale(1/math.Sqrt(attnDim), scores)
	for i := 0; i < a.side; i++ {
		copy(scores.RawRowView(i), Softmax(scores.RawRowView(i)))
	}

	ctx := mat.NewDense(a.side, attnDim, nil)
	ctx.Mul(scores, v)

	pooled := make([]float64, attnDim)
	for i := 0; i < a.side; i++ {
		floats.Add(pooled, ctx.RawRowView(i))
	}
	floats.Scale(1/float64(a.side), pooled)

	h := relu(a.fc.forward(concat(pooled, pos)))
	logits, value := a.heads.forward(h)
	return logits, value, nil
}

func (a *Attention) Parameters() []Parameter {
	var ps []Parameter
	for _, l := range []*dense{a.query, a.key, a.value, a.fc} {
		ps = append(ps, l.params()...)
	}
	return append(ps, a.heads.params()...)
}
