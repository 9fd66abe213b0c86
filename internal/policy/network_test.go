package policy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/cartridge/evaluator/internal/env"
)

func testInputs(t *testing.T, arch Architecture) Inputs {
	t.Helper()
	in, err := PrepareInputs(arch, 5, rampObs(25), []env.Position{{Row: 0, Col: 1}, {Row: 4, Col: 2}, {Row: 2, Col: 2}}, 3, 25)
	require.NoError(t, err)
	return in
}

func TestNetworks_Forward(t *testing.T) {
	for _, arch := range []Architecture{ArchMLP, ArchCNN, ArchAttn} {
		t.Run(string(arch), func(t *testing.T) {
			net, err := New(arch, 25, 3, 5)
			require.NoError(t, err)
			Initialize(net, 11)

			logits, value, err := net.Forward(testInputs(t, arch))
			require.NoError(t, err)
			assert.Len(t, logits, 5)
			assert.False(t, math.IsNaN(value))

			// Same inputs, same frozen weights, same outputs.
			again, value2, err := net.Forward(testInputs(t, arch))
			require.NoError(t, err)
			assert.Equal(t, logits, again)
			assert.Equal(t, value, value2)
		})
	}
}

func TestNetworks_RejectWrongInputs(t *testing.T) {
	net, err := New(ArchCNN, 25, 3, 5)
	require.NoError(t, err)

	_, _, err = net.Forward(testInputs(t, ArchMLP))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	mlp, err := New(ArchMLP, 16, 3, 5)
	require.NoError(t, err)
	_, _, err = mlp.Forward(testInputs(t, ArchMLP))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(ArchCNN, 24, 3, 5)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = New(ArchMLP, 0, 3, 5)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = New(Architecture("GRU"), 25, 3, 5)
	assert.ErrorIs(t, err, ErrUnknownArchitecture)
}

func TestParameters_Names(t *testing.T) {
	net, err := New(ArchMLP, 25, 2, 5)
	require.NoError(t, err)

	var names []string
	for _, p := range net.Parameters() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{
		"fc1.weight", "fc1.bias", "fc2.weight", "fc2.bias",
		"actor.weight", "actor.bias", "critic.weight", "critic.bias",
	}, names)
	assert.Equal(t, []int{hiddenSize, 29}, net.Parameters()[0].Shape)
}

func TestSoftmax(t *testing.T) {
	p := Softmax([]float64{1, 2, 3, 1000})
	assert.InDelta(t, 1.0, floats.Sum(p), 1e-9)
	assert.InDelta(t, 1.0, p[3], 1e-9)

	uniform := Softmax([]float64{0, 0, 0, 0})
	for _, v := range uniform {
		assert.InDelta(t, 0.25, v, 1e-12)
	}
	assert.Empty(t, Softmax(nil))
}

func TestSampler(t *testing.T) {
	a, b := NewSampler(3), NewSampler(3)
	logits := []float64{0.1, 0.5, -0.2, 0.3, 0}
	for i := 0; i < 50; i++ {
		x, y := a.Sample(logits), b.Sample(logits)
		assert.Equal(t, x, y)
		assert.GreaterOrEqual(t, x, 0)
		assert.Less(t, x, len(logits))
	}

	peaked := []float64{-50, -50, 50, -50}
	for i := 0; i < 20; i++ {
		assert.Equal(t, 2, a.Sample(peaked))
	}
}

func TestSampler_Variety(t *testing.T) {
	s := NewSampler(9)
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		seen[s.Sample([]float64{0, 0, 0, 0, 0})] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)
}

func TestInitialize_SeededAndBounded(t *testing.T) {
	a, err := New(ArchMLP, 25, 3, 5)
	require.NoError(t, err)
	b, err := New(ArchMLP, 25, 3, 5)
	require.NoError(t, err)
	Initialize(a, 11)
	Initialize(b, 11)

	pa, pb := a.Parameters(), b.Parameters()
	for i, p := range pa {
		assert.Equal(t, p.Data, pb[i].Data, p.Name)
		bound := 1.0
		if p.FanIn > 0 {
			bound = 1 / math.Sqrt(float64(p.FanIn))
		}
		for _, w := range p.Data {
			assert.LessOrEqual(t, math.Abs(w), bound+1e-6, p.Name)
			assert.Equal(t, float64(float32(w)), w, p.Name)
		}
	}
}
