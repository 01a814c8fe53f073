// Package rollout drives full episodes of the mean-field predator-prey
// game: one state per population advanced in lockstep, with the mean-field
// distributions produced by evolving every population's density forward
// under the same policy the agents sample their moves from.
package rollout

import (
	"github.com/brensch/meanfield/game"
)

// Policy produces movement action probabilities from an agent observation.
// Implementations must return game.NumActions probabilities summing to 1.
//
// The same policy is used to sample individual decisions and to evolve the
// population densities, which keeps trajectories and mean field consistent.
type Policy interface {
	Probs(population int, pos game.Position, t int) ([]float64, error)
}

// UniformPolicy picks every movement action with equal probability.
type UniformPolicy struct{}

func (UniformPolicy) Probs(int, game.Position, int) ([]float64, error) {
	probs := make([]float64, game.NumActions)
	for i := range probs {
		probs[i] = 1 / float64(game.NumActions)
	}
	return probs, nil
}
