package rollout

import (
	"fmt"

	"github.com/brensch/meanfield/game"
)

// DensityTracker evolves every population's cell distribution forward one
// step at a time: the discrete mean-field dynamics induced by a policy and
// the grid geometry. Mass is conserved exactly up to floating error.
type DensityTracker struct {
	g *game.Game

	// densities[q][cell] is population q's current mass on cell.
	densities [][]float64
	time      int
}

// NewDensityTracker starts every population at the game's initial
// distribution.
func NewDensityTracker(g *game.Game) *DensityTracker {
	n := g.Populations()
	cells := g.Size() * g.Size()
	densities := make([][]float64, n)

	// Read the initial distribution off a fresh state's chance outcomes so
	// the tracker stays in sync with whatever the game was configured with.
	init := make([]float64, cells)
	s, err := g.NewInitialStateForPopulation(0)
	if err == nil {
		if outcomes, err := s.ChanceOutcomes(); err == nil {
			for _, o := range outcomes {
				init[int(o.Action)] = o.Prob
			}
		}
	}

	for q := range densities {
		densities[q] = append([]float64(nil), init...)
	}
	return &DensityTracker{g: g, densities: densities}
}

// Time returns the number of forward steps taken.
func (d *DensityTracker) Time() int { return d.time }

// DensityAt returns population q's current mass on pos.
func (d *DensityTracker) DensityAt(q int, pos game.Position) float64 {
	return d.densities[q][game.MergedID(pos, d.g.Size())]
}

// Grid returns a copy of population q's current distribution, indexed by
// merged position id.
func (d *DensityTracker) Grid(q int) []float64 {
	return append([]float64(nil), d.densities[q]...)
}

// Step advances every population's distribution one move under the policy.
func (d *DensityTracker) Step(policy Policy) error {
	size := d.g.Size()
	geom := d.g.Geometry()

	for q := range d.densities {
		next := make([]float64, size*size)
		for cell, mass := range d.densities[q] {
			if mass == 0 {
				continue
			}
			pos := game.PositionFromMerged(cell, size)
			probs, err := policy.Probs(q, pos, d.time)
			if err != nil {
				return fmt.Errorf("policy for population %d at %v: %w", q, pos, err)
			}
			if len(probs) != game.NumActions {
				return fmt.Errorf("policy returned %d probabilities, want %d", len(probs), game.NumActions)
			}
			for a, p := range probs {
				target := game.Move(pos, game.Action(a), size, geom)
				next[game.MergedID(target, size)] += mass * p
			}
		}
		d.densities[q] = next
	}
	d.time++
	return nil
}

// SupportProbs flattens the tracked densities into the probability vector
// expected by game.State.UpdateDistribution for the given support.
func (d *DensityTracker) SupportProbs(support []game.StateKey) []float64 {
	size := d.g.Size()
	probs := make([]float64, len(support))
	for i, k := range support {
		probs[i] = d.densities[k.Population][game.MergedID(game.Position{X: k.X, Y: k.Y}, size)]
	}
	return probs
}
