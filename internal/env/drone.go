package env

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Observation cell values.
const (
	CellUnexplored = 0.0
	CellExplored   = 0.5
	CellAnomaly    = 1.0
)

const (
	stepPenalty  = -0.01
	anomalyBonus = 1.0

	// Episodes are cut off after this many steps per grid cell.
	stepsPerCell = 40
)

// Options configures a DroneEnv.
type Options struct {
	RowCount   int
	ColCount   int
	StepSize   float64
	NAnomalous int
	NDrones    int
	// MaxSteps caps an episode; zero derives it from the grid size.
	MaxSteps int
	// Seed seeds placement; zero leaves it random.
	Seed uint64
}

// DroneEnv is a grid world in which drones sweep for anomalous cells.
type DroneEnv struct {
	rows, cols int
	moveCells  int
	nAnomalous int
	nDrones    int
	maxSteps   int
	rng        *rand.Rand

	anomalies map[int]bool
	found     map[int]bool
	grid      []float64
	drones    []Position
	steps     int
}

// NewDroneEnv builds an environment; call Reset before stepping.
func NewDroneEnv(opts Options) (*DroneEnv, error) {
	if opts.RowCount <= 0 || opts.ColCount <= 0 {
		return nil, fmt.Errorf("grid must be non-empty, got %dx%d", opts.RowCount, opts.ColCount)
	}
	if opts.NDrones < 0 || opts.NAnomalous < 0 {
		return nil, fmt.Errorf("drone and anomaly counts must be non-negative")
	}

	cells := opts.RowCount * opts.ColCount
	nAnomalous := opts.NAnomalous
	if nAnomalous > cells {
		nAnomalous = cells
	}

	moveCells := int(math.Round(opts.StepSize))
	if moveCells < 1 {
		moveCells = 1
	}

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = cells * stepsPerCell
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	e := &DroneEnv{
		rows:       opts.RowCount,
		cols:       opts.ColCount,
		moveCells:  moveCells,
		nAnomalous: nAnomalous,
		nDrones:    opts.NDrones,
		maxSteps:   maxSteps,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	e.Reset()
	return e, nil
}

func (e *DroneEnv) StateSize() int  { return e.rows * e.cols }
func (e *DroneEnv) ActionSize() int { return int(numActions) }
func (e *DroneEnv) NumDrones() int  { return e.nDrones }

// MaxSteps is the episode cut-off.
func (e *DroneEnv) MaxSteps() int { return e.maxSteps }

// AnomaliesFound reports how many anomalous cells have been discovered.
func (e *DroneEnv) AnomaliesFound() int { return len(e.found) }

// AnomalyCount is the number of anomalous cells placed on reset.
func (e *DroneEnv) AnomalyCount() int { return e.nAnomalous }

func (e *DroneEnv) DronePositions() []Position {
	out := make([]Position, len(e.drones))
	copy(out, e.drones)
	return out
}

// Reset scatters anomalies over distinct cells and drones anywhere.
func (e *DroneEnv) Reset() []float64 {
	cells := e.rows * e.cols
	e.steps = 0
	e.grid = make([]float64, cells)
	e.found = make(map[int]bool, e.nAnomalous)
	e.anomalies = make(map[int]bool, e.nAnomalous)
	for _, idx := range e.rng.Perm(cells)[:e.nAnomalous] {
		e.anomalies[idx] = true
	}

	e.drones = make([]Position, e.nDrones)
	for i := range e.drones {
		idx := e.rng.IntN(cells)
		e.drones[i] = Position{Row: idx / e.cols, Col: idx % e.cols}
		e.visit(e.drones[i])
	}
	return e.observation()
}

// Step moves every drone, then scores newly discovered anomalies.
func (e *DroneEnv) Step(actions []int) (StepResult, error) {
	if len(actions) != e.nDrones {
		return StepResult{}, fmt.Errorf("%w: got %d actions for %d drones", ErrInvalidAction, len(actions), e.nDrones)
	}
	for i, a := range actions {
		if a < 0 || a >= int(numActions) {
			return StepResult{}, fmt.Errorf("%w: drone %d action %d out of range [0, %d)", ErrInvalidAction, i, a, numActions)
		}
	}

	reward := stepPenalty
	for i, a := range actions {
		e.drones[i] = e.move(e.drones[i], Action(a))
		if e.visit(e.drones[i]) {
			reward += anomalyBonus
		}
	}
	e.steps++

	done := len(e.found) == e.nAnomalous || e.steps >= e.maxSteps
	return StepResult{
		Observation: e.observation(),
		Reward:      reward,
		Done:        done,
	}, nil
}

func (e *DroneEnv) move(p Position, a Action) Position {
	switch a {
	case ActionUp:
		p.Row -= e.moveCells
	case ActionDown:
		p.Row += e.moveCells
	case ActionLeft:
		p.Col -= e.moveCells
	case ActionRight:
		p.Col += e.moveCells
	}
	p.Row = clamp(p.Row, 0, e.rows-1)
	p.Col = clamp(p.Col, 0, e.cols-1)
	return p
}

// visit marks a cell and reports whether it revealed a new anomaly.
func (e *DroneEnv) visit(p Position) bool {
	idx := p.Row*e.cols + p.Col
	if e.anomalies[idx] {
		e.grid[idx] = CellAnomaly
		if !e.found[idx] {
			e.found[idx] = true
			return true
		}
		return false
	}
	e.grid[idx] = CellExplored
	return false
}

func (e *DroneEnv) observation() []float64 {
	out := make([]float64, len(e.grid))
	copy(out, e.grid)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
