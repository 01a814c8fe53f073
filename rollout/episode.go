package rollout

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brensch/meanfield/game"
)

// Step records one population's slice of one decision cycle.
type Step struct {
	T          int
	Population int
	Pos        game.Position
	Action     game.Action
	// Rewards is the full per-population reward vector computed at this
	// cycle's mean-field resolution, from this population's state.
	Rewards []float64
	// CellDensities is every population's mass on this agent's cell when
	// the reward was computed.
	CellDensities []float64
}

// Episode is a completed rollout across all populations of a game.
type Episode struct {
	ID          string
	Size        int
	Horizon     int
	Populations int
	Geometry    game.Geometry

	// Steps holds Horizon cycles x Populations entries, cycle-major.
	Steps []Step
	// TotalRewards accumulates each population's own reward over the
	// episode.
	TotalRewards []float64
}

// Options configures RunEpisode. The zero value runs a uniform-policy
// episode with a time-seeded RNG.
type Options struct {
	Policy Policy
	RNG    *rand.Rand
	// EpisodeID overrides the generated id a clean run gets.
	EpisodeID string
}

// RunEpisode advances one state per population through the full node-type
// protocol until every state is terminal. The mean-field distributions fed
// at every MeanField node come from a shared DensityTracker evolved under
// the same policy the agents sample from.
func RunEpisode(ctx context.Context, g *game.Game, opts Options) (*Episode, error) {
	policy := opts.Policy
	if policy == nil {
		policy = UniformPolicy{}
	}
	rng := opts.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	id := opts.EpisodeID
	if id == "" {
		id = fmt.Sprintf("rollout_%d", time.Now().UnixNano())
	}

	n := g.Populations()
	states := make([]*game.State, n)
	for p := range states {
		s, err := g.NewInitialStateForPopulation(p)
		if err != nil {
			return nil, err
		}
		states[p] = s
	}
	tracker := NewDensityTracker(g)

	ep := &Episode{
		ID:           id,
		Size:         g.Size(),
		Horizon:      g.Horizon(),
		Populations:  n,
		Geometry:     g.Geometry(),
		Steps:        make([]Step, 0, g.Horizon()*n),
		TotalRewards: make([]float64, n),
	}

	for t := 0; t < g.Horizon(); t++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Chance, decision and neutral node for every population.
		actions := make([]game.Action, n)
		for p, s := range states {
			outcomes, err := s.ChanceOutcomes()
			if err != nil {
				return nil, fmt.Errorf("population %d cycle %d: %w", p, t, err)
			}
			if err := s.ApplyAction(sampleOutcome(rng, outcomes)); err != nil {
				return nil, fmt.Errorf("population %d cycle %d: %w", p, t, err)
			}

			pos, _ := s.Pos()
			probs, err := policy.Probs(p, pos, t)
			if err != nil {
				return nil, fmt.Errorf("policy for population %d cycle %d: %w", p, t, err)
			}
			actions[p] = game.Action(sampleIndex(rng, probs))
			if err := s.ApplyAction(actions[p]); err != nil {
				return nil, fmt.Errorf("population %d cycle %d: %w", p, t, err)
			}
			if err := s.ApplyAction(game.ActionStay); err != nil {
				return nil, fmt.Errorf("population %d cycle %d: %w", p, t, err)
			}
		}

		// Evolve the shared mean field by the same policy, then resolve
		// every population's mean-field node from the same snapshot.
		if err := tracker.Step(policy); err != nil {
			return nil, err
		}
		for p, s := range states {
			support, err := s.DistributionSupport()
			if err != nil {
				return nil, fmt.Errorf("population %d cycle %d: %w", p, t, err)
			}
			pos, _ := s.Pos()
			if err := s.UpdateDistribution(tracker.SupportProbs(support)); err != nil {
				return nil, fmt.Errorf("population %d cycle %d: %w", p, t, err)
			}

			cellDens := make([]float64, n)
			for q := 0; q < n; q++ {
				cellDens[q] = tracker.DensityAt(q, pos)
			}
			rewards := s.Rewards()
			ep.Steps = append(ep.Steps, Step{
				T:             t,
				Population:    p,
				Pos:           pos,
				Action:        actions[p],
				Rewards:       rewards,
				CellDensities: cellDens,
			})
			ep.TotalRewards[p] += rewards[p]
		}
	}

	for p, s := range states {
		if !s.IsTerminal() {
			return nil, fmt.Errorf("population %d not terminal after %d cycles", p, g.Horizon())
		}
	}
	return ep, nil
}

func sampleOutcome(rng *rand.Rand, outcomes []game.ChanceOutcome) game.Action {
	r := rng.Float64()
	acc := 0.0
	for _, o := range outcomes {
		acc += o.Prob
		if r < acc {
			return o.Action
		}
	}
	return outcomes[len(outcomes)-1].Action
}

func sampleIndex(rng *rand.Rand, probs []float64) int {
	r := rng.Float64()
	acc := 0.0
	for i, p := range probs {
		acc += p
		if r < acc {
			return i
		}
	}
	return len(probs) - 1
}
