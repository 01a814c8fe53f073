// Package game implements a multi-population predator-prey mean-field game
// on a discrete 2-D grid.
//
// Each of N populations moves on the same grid over a fixed horizon. A
// state advances through a fixed node cycle (initial chance, decision,
// neutral chance, mean field) and its reward couples the agent's cell to
// the density every population places on that cell, combined through a
// pairwise interaction matrix.
//
// States are designed to be cheaply clonable so that search and
// best-response drivers can explore counterfactual action sequences.
// A single State must only be mutated by one goroutine at a time; distinct
// States (including clones) are fully independent.
package game

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Default configuration values. The default reward matrix is the classic
// three-population rock-paper-scissors style predation cycle.
const (
	DefaultSize        = 10
	DefaultHorizon     = 10
	DefaultPopulations = 3
)

// DefaultRewardMatrix returns the built-in interaction matrix for three
// populations: each population preys on the next and flees the previous.
func DefaultRewardMatrix() []float64 {
	return []float64{
		0, -1, 1,
		1, 0, -1,
		-1, 1, 0,
	}
}

// Config holds the construction parameters of a game. All fields are
// resolved once at construction; a Game holds no mutable defaults.
type Config struct {
	// Size is the side length of the grid.
	Size int
	// Horizon is the number of full decision cycles per episode.
	Horizon int
	// Populations is the number of interacting populations N.
	Populations int
	// Geometry is the boundary policy (Square or Torus).
	Geometry Geometry
	// RewardMatrix is the row-major N x N interaction matrix. Empty means
	// DefaultRewardMatrix (only valid when Populations == 3).
	RewardMatrix []float64
	// InitialDistribution is the initial position distribution, indexed by
	// merged position id (length Size*Size). Empty means uniform.
	InitialDistribution []float64
}

// DefaultConfig returns the configuration used when no parameters are
// supplied.
func DefaultConfig() Config {
	return Config{
		Size:        DefaultSize,
		Horizon:     DefaultHorizon,
		Populations: DefaultPopulations,
		Geometry:    Square,
	}
}

// Game is an immutable game description. It is safe for concurrent use;
// all mutable episode state lives in State.
type Game struct {
	size         int
	horizon      int
	populations  int
	geometry     Geometry
	rewardMatrix []float64
	initProbs    []float64
}

// initDistributionTolerance bounds the deviation from 1 accepted for the
// total mass of a configured initial distribution.
const initDistributionTolerance = 1e-9

// NewGame validates cfg and builds a game. Every configuration problem is
// reported here, wrapping ErrConfiguration; nothing is deferred to later
// calls.
func NewGame(cfg Config) (*Game, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrConfiguration, cfg.Size)
	}
	if cfg.Horizon <= 0 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d", ErrConfiguration, cfg.Horizon)
	}
	if cfg.Populations <= 0 {
		return nil, fmt.Errorf("%w: populations must be positive, got %d", ErrConfiguration, cfg.Populations)
	}
	if cfg.Geometry != Square && cfg.Geometry != Torus {
		return nil, fmt.Errorf("%w: unknown geometry %d", ErrConfiguration, int(cfg.Geometry))
	}

	n := cfg.Populations
	matrix := cfg.RewardMatrix
	if len(matrix) == 0 {
		if n != DefaultPopulations {
			return nil, fmt.Errorf("%w: no reward matrix configured for %d populations", ErrConfiguration, n)
		}
		matrix = DefaultRewardMatrix()
	}
	if len(matrix) != n*n {
		return nil, fmt.Errorf("%w: reward matrix has %d entries, want %d for %d populations",
			ErrConfiguration, len(matrix), n*n, n)
	}

	cells := cfg.Size * cfg.Size
	init := cfg.InitialDistribution
	if len(init) == 0 {
		init = make([]float64, cells)
		for i := range init {
			init[i] = 1 / float64(cells)
		}
	}
	if len(init) != cells {
		return nil, fmt.Errorf("%w: initial distribution has %d entries, want %d",
			ErrConfiguration, len(init), cells)
	}
	sum := 0.0
	for i, p := range init {
		if p < 0 {
			return nil, fmt.Errorf("%w: initial distribution has negative mass %v at cell %d",
				ErrConfiguration, p, i)
		}
		sum += p
	}
	if math.Abs(sum-1) > initDistributionTolerance {
		return nil, fmt.Errorf("%w: initial distribution sums to %v, want 1", ErrConfiguration, sum)
	}

	return &Game{
		size:         cfg.Size,
		horizon:      cfg.Horizon,
		populations:  n,
		geometry:     cfg.Geometry,
		rewardMatrix: append([]float64(nil), matrix...),
		initProbs:    append([]float64(nil), init...),
	}, nil
}

func (g *Game) Size() int          { return g.size }
func (g *Game) Horizon() int       { return g.horizon }
func (g *Game) Populations() int   { return g.populations }
func (g *Game) Geometry() Geometry { return g.geometry }

// RewardMatrix returns a copy of the row-major interaction matrix.
func (g *Game) RewardMatrix() []float64 {
	return append([]float64(nil), g.rewardMatrix...)
}

// rewardCoefficient is the interaction coefficient of population p toward
// the density of population q.
func (g *Game) rewardCoefficient(p, q int) float64 {
	return g.rewardMatrix[p*g.populations+q]
}

// NewInitialStateForPopulation creates a fresh episode state deciding for
// the given population. The state starts at the initial chance node.
func (g *Game) NewInitialStateForPopulation(population int) (*State, error) {
	if population < 0 || population >= g.populations {
		return nil, fmt.Errorf("%w: population %d out of range [0, %d)",
			ErrConfiguration, population, g.populations)
	}
	return &State{
		game:       g,
		population: population,
		node:       NodeChanceInit,
	}, nil
}

// ParseRewardMatrix parses the whitespace-separated row-major matrix form
// used by textual game parameters, e.g. "0 -1 1 1 0 -1 -1 1 0".
func ParseRewardMatrix(s string) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad reward matrix entry %q", ErrConfiguration, f)
		}
		out = append(out, v)
	}
	return out, nil
}
