package policy

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws actions from softmax(logits).
type Sampler struct {
	src rand.Source
}

// NewSampler seeds a sampler; equal seeds give equal action streams.
func NewSampler(seed uint64) *Sampler {
	return &Sampler{src: rand.NewPCG(seed, seed^0xda3e39cb94b95bdb)}
}

// Sample returns an action index in [0, len(logits)).
func (s *Sampler) Sample(logits []float64) int {
	probs := Softmax(logits)
	return int(distuv.NewCategorical(probs, s.src).Rand())
}
