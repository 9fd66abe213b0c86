package policy

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// dense is a fully connected layer, y = Wx + b, with W stored out×in.
type dense struct {
	name string
	w    *mat.Dense
	b    *mat.VecDense
}

func newDense(name string, in, out int) *dense {
	return &dense{
		name: name,
		w:    mat.NewDense(out, in, nil),
		b:    mat.NewVecDense(out, nil),
	}
}

func (d *dense) params() []Parameter {
	out, in := d.w.Dims()
	return []Parameter{
		{Name: d.name + ".weight", Shape: []int{out, in}, Data: d.w.RawMatrix().Data, FanIn: in},
		{Name: d.name + ".bias", Shape: []int{out}, Data: d.b.RawVector().Data, FanIn: in},
	}
}

func (d *dense) forward(x []float64) []float64 {
	out, _ := d.w.Dims()
	y := mat.NewVecDense(out, nil)
	y.MulVec(d.w, mat.NewVecDense(len(x), x))
	y.AddVec(y, d.b)
	return y.RawVector().Data
}

// forwardRows applies the layer to every row of x.
func (d *dense) forwardRows(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	out, _ := d.w.Dims()
	y := mat.NewDense(rows, out, nil)
	y.Mul(x, d.w.T())
	bias := d.b.RawVector().Data
	for i := 0; i < rows; i++ {
		floats.Add(y.RawRowView(i), bias)
	}
	return y
}

func relu(x []float64) []float64 {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
	return x
}

func concat(parts ...[]float64) []float64 {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]float64, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Softmax normalises logits into probabilities.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	lse := floats.LogSumExp(logits)
	for i, l := range logits {
		out[i] = math.Exp(l - lse)
	}
	return out
}

// heads is the shared actor-critic output stage.
type heads struct {
	actor  *dense
	critic *dense
}

func newHeads(hidden, actionSize int) heads {
	return heads{
		actor:  newDense("actor", hidden, actionSize),
		critic: newDense("critic", hidden, 1),
	}
}

func (h heads) params() []Parameter {
	return append(h.actor.params(), h.critic.params()...)
}

func (h heads) forward(x []float64) ([]float64, float64) {
	return h.actor.forward(x), h.critic.forward(x)[0]
}
