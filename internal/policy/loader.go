package policy

import (
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"

	"gonum.org/v1/gonum/stat/distuv"
)

// ModelSpec describes the per-drone networks of one evaluation.
type ModelSpec struct {
	ModelDir   string
	Arch       Architecture
	ICM        bool
	StateSize  int
	NDrones    int
	ActionSize int
}

// CheckpointPath is {dir}/{arch}_policy/A2C_drone_{ICM_}{agent}.bin.
func CheckpointPath(modelDir string, arch Architecture, icm bool, agent int) string {
	prefix := ""
	if icm {
		prefix = "ICM_"
	}
	return filepath.Join(modelDir, fmt.Sprintf("%s_policy", arch), fmt.Sprintf("A2C_drone_%s%d.bin", prefix, agent))
}

// Path returns the checkpoint path for one drone.
func (s ModelSpec) Path(agent int) string {
	return CheckpointPath(s.ModelDir, s.Arch, s.ICM, agent)
}

// LoadModels builds and loads one network per drone, failing on the first
// checkpoint that is missing or does not fit.
func LoadModels(spec ModelSpec) ([]Network, error) {
	nets := make([]Network, 0, spec.NDrones)
	for i := 0; i < spec.NDrones; i++ {
		net, err := New(spec.Arch, spec.StateSize, spec.NDrones, spec.ActionSize)
		if err != nil {
			return nil, err
		}
		if err := LoadCheckpoint(spec.Path(i), net); err != nil {
			return nil, fmt.Errorf("drone %d: %w", i, err)
		}
		nets = append(nets, net)
	}
	return nets, nil
}

// Initialize fills every parameter with U(-1/sqrt(fan_in), 1/sqrt(fan_in)),
// rounded to float32 so the weights survive a checkpoint round trip.
func Initialize(net Network, seed uint64) {
	src := rand.NewPCG(seed, seed+1)
	for _, p := range net.Parameters() {
		bound := 1.0
		if p.FanIn > 0 {
			bound = 1 / math.Sqrt(float64(p.FanIn))
		}
		u := distuv.Uniform{Min: -bound, Max: bound, Src: src}
		for i := range p.Data {
			p.Data[i] = float64(float32(u.Rand()))
		}
	}
}

// InitModels writes freshly initialised checkpoints for every drone and
// returns the paths written.
func InitModels(spec ModelSpec, seed uint64) ([]string, error) {
	paths := make([]string, 0, spec.NDrones)
	for i := 0; i < spec.NDrones; i++ {
		net, err := New(spec.Arch, spec.StateSize, spec.NDrones, spec.ActionSize)
		if err != nil {
			return nil, err
		}
		Initialize(net, seed+uint64(i))
		path := spec.Path(i)
		if err := SaveCheckpoint(path, net); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
