package actor

import (
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/cartridge/evaluator/internal/env"
)

// writeSnapshot prints the periodic diagnostic block. actions is nil for
// the snapshot taken before the first step.
func writeSnapshot(w io.Writer, step int, positions []env.Position, actions []int, obs []float64, gridSize int) {
	fmt.Fprintf(w, "Step: %d\n", step)
	fmt.Fprintf(w, "Drone positions:%s\n", formatPositions(positions))
	if actions != nil {
		fmt.Fprintf(w, "Action:%v\n", actions)
	}

	if gridSize > 0 && len(obs) == gridSize*gridSize {
		grid := mat.NewDense(gridSize, gridSize, obs)
		fmt.Fprintf(w, "%v\n\n", mat.Formatted(grid, mat.Squeeze()))
		return
	}
	fmt.Fprintf(w, "%v\n\n", obs)
}

func formatPositions(positions []env.Position) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = p.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
