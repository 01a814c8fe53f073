package game

import (
	"fmt"
	"math"
)

// NodeType identifies which kind of input a state expects next. Exactly
// one node type is active at any moment.
type NodeType int

const (
	// NodeChanceInit samples the agent position. At time 0 the outcomes
	// follow the configured initial distribution; afterwards the node is
	// a single forced outcome keeping the current position.
	NodeChanceInit NodeType = iota
	// NodeDecision expects a movement action from the acting population.
	NodeDecision
	// NodeChanceNeutral is the forced step separating the agent's move
	// from reward computation.
	NodeChanceNeutral
	// NodeMeanField waits for an externally supplied distribution over
	// the reachable states at the current time.
	NodeMeanField
	// NodeTerminal is absorbing; reached once time equals the horizon.
	NodeTerminal
)

func (n NodeType) String() string {
	switch n {
	case NodeChanceInit:
		return "chance_init"
	case NodeDecision:
		return "decision"
	case NodeChanceNeutral:
		return "chance_neutral"
	case NodeMeanField:
		return "mean_field"
	case NodeTerminal:
		return "terminal"
	}
	return fmt.Sprintf("node(%d)", int(n))
}

// Player id sentinels returned by CurrentPlayer for non-decision nodes.
// The values match the mean-field-game host convention.
const (
	ChancePlayerID    = -1
	TerminalPlayerID  = -4
	MeanFieldPlayerID = -5
)

// RewardEpsilon regularizes the log term of the reward so a population
// with zero mass at its own cell yields a finite value.
const RewardEpsilon = 1e-25

// distributionTolerance bounds the deviation from 1 accepted for each
// population's mass in UpdateDistribution.
const distributionTolerance = 1e-9

// StateKey identifies one entry of a mean-field distribution support:
// a cell, a time step and a population. It is a comparable composite key;
// String is only a debugging rendering.
type StateKey struct {
	X          int
	Y          int
	T          int
	Population int
}

func (k StateKey) String() string {
	return fmt.Sprintf("(%d, %d, %d)_%d", k.X, k.Y, k.T, k.Population)
}

// ChanceOutcome pairs a chance-node action with its probability.
type ChanceOutcome struct {
	Action Action
	Prob   float64
}

// State is one episode of one population. It is mutated in place by
// ApplyAction and UpdateDistribution and becomes immutable once terminal.
//
// A State is not safe for concurrent mutation; Clone for parallel
// exploration.
type State struct {
	game       *Game
	population int

	time   int
	pos    Position
	hasPos bool
	node   NodeType

	// pendingAction is the movement chosen at the decision node, applied
	// at the following neutral chance node.
	pendingAction Action

	// densities[q][cell] is the mass population q placed on cell in the
	// most recent distribution update. nil before the first update.
	densities [][]float64

	// rewards is the per-population reward vector computed at the most
	// recent mean-field resolution.
	rewards []float64
}

// Population returns the population index this state decides for.
func (s *State) Population() int { return s.population }

// Time returns the number of completed decision cycles.
func (s *State) Time() int { return s.time }

// NodeType returns the currently active node type.
func (s *State) NodeType() NodeType { return s.node }

// Pos returns the current position. ok is false until the initial chance
// node has resolved.
func (s *State) Pos() (pos Position, ok bool) {
	return s.pos, s.hasPos
}

// IsTerminal reports whether the episode has ended.
func (s *State) IsTerminal() bool { return s.node == NodeTerminal }

// CurrentPlayer tells the driver which kind of input is expected next:
// ChancePlayerID, MeanFieldPlayerID, TerminalPlayerID, or the population
// index at decision nodes.
func (s *State) CurrentPlayer() int {
	switch s.node {
	case NodeChanceInit, NodeChanceNeutral:
		return ChancePlayerID
	case NodeMeanField:
		return MeanFieldPlayerID
	case NodeTerminal:
		return TerminalPlayerID
	}
	return s.population
}

// LegalActions returns the actions accepted by ApplyAction at the current
// node. It is empty at mean-field and terminal nodes.
func (s *State) LegalActions() []Action {
	switch s.node {
	case NodeChanceInit:
		outcomes := s.initOutcomes()
		actions := make([]Action, len(outcomes))
		for i, o := range outcomes {
			actions[i] = o.Action
		}
		return actions
	case NodeDecision:
		actions := make([]Action, NumActions)
		for i := range actions {
			actions[i] = Action(i)
		}
		return actions
	case NodeChanceNeutral:
		return []Action{ActionStay}
	}
	return nil
}

// ChanceOutcomes returns the outcome distribution of the current chance
// node. Probabilities sum to 1.
func (s *State) ChanceOutcomes() ([]ChanceOutcome, error) {
	switch s.node {
	case NodeChanceInit:
		return s.initOutcomes(), nil
	case NodeChanceNeutral:
		return []ChanceOutcome{{Action: ActionStay, Prob: 1}}, nil
	}
	return nil, fmt.Errorf("%w: chance outcomes requested at %v node", ErrIllegalOperation, s.node)
}

// initOutcomes lists the outcomes of the position-sampling chance node.
// After the first cycle the node keeps the current position with
// probability 1; positions are never resampled mid-episode.
func (s *State) initOutcomes() []ChanceOutcome {
	if s.hasPos {
		return []ChanceOutcome{{Action: Action(MergedID(s.pos, s.game.size)), Prob: 1}}
	}
	outcomes := make([]ChanceOutcome, 0, len(s.game.initProbs))
	for id, p := range s.game.initProbs {
		if p <= 0 {
			continue
		}
		outcomes = append(outcomes, ChanceOutcome{Action: Action(id), Prob: p})
	}
	return outcomes
}

// ApplyAction advances a decision or chance node. An action outside the
// currently legal set fails with ErrInvalidAction and leaves the state
// unchanged; mean-field and terminal nodes fail with ErrIllegalOperation.
func (s *State) ApplyAction(a Action) error {
	switch s.node {
	case NodeChanceInit:
		id := int(a)
		if id < 0 || id >= s.game.size*s.game.size {
			return fmt.Errorf("%w: initial position id %d out of range", ErrInvalidAction, id)
		}
		if s.hasPos {
			if id != MergedID(s.pos, s.game.size) {
				return fmt.Errorf("%w: forced chance outcome is %d, got %d",
					ErrInvalidAction, MergedID(s.pos, s.game.size), id)
			}
		} else if s.game.initProbs[id] <= 0 {
			return fmt.Errorf("%w: initial position id %d has zero probability", ErrInvalidAction, id)
		}
		s.pos = PositionFromMerged(id, s.game.size)
		s.hasPos = true
		s.node = NodeDecision
		return nil

	case NodeDecision:
		if a < 0 || a >= NumActions {
			return fmt.Errorf("%w: movement action %d out of range [0, %d)", ErrInvalidAction, a, NumActions)
		}
		s.pendingAction = a
		s.node = NodeChanceNeutral
		return nil

	case NodeChanceNeutral:
		if a != ActionStay {
			return fmt.Errorf("%w: neutral chance node only accepts action %d, got %d",
				ErrInvalidAction, ActionStay, a)
		}
		s.pos = Move(s.pos, s.pendingAction, s.game.size, s.game.geometry)
		s.node = NodeMeanField
		return nil
	}

	return fmt.Errorf("%w: apply action at %v node", ErrIllegalOperation, s.node)
}

// DistributionSupport lists the state keys UpdateDistribution expects, in
// order: x-major, then y, then population, all at the current time.
func (s *State) DistributionSupport() ([]StateKey, error) {
	if s.node != NodeMeanField {
		return nil, fmt.Errorf("%w: distribution support requested at %v node", ErrIllegalOperation, s.node)
	}
	size, n := s.game.size, s.game.populations
	keys := make([]StateKey, 0, size*size*n)
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			for p := 0; p < n; p++ {
				keys = append(keys, StateKey{X: x, Y: y, T: s.time, Population: p})
			}
		}
	}
	return keys, nil
}

// UpdateDistribution resolves a mean-field node. probs must align with
// DistributionSupport and each population's mass must sum to 1 within
// tolerance; otherwise the call fails with ErrInvalidDistribution and the
// state is unchanged.
//
// On success the per-population rewards for the current cell are computed
// from the supplied densities, time advances by one, and the state moves
// to the next chance node (or terminal at the horizon).
func (s *State) UpdateDistribution(probs []float64) error {
	if s.node != NodeMeanField {
		return fmt.Errorf("%w: distribution update at %v node", ErrIllegalOperation, s.node)
	}
	size, n := s.game.size, s.game.populations
	want := size * size * n
	if len(probs) != want {
		return fmt.Errorf("%w: got %d probabilities, support has %d entries",
			ErrInvalidDistribution, len(probs), want)
	}

	densities := make([][]float64, n)
	for q := range densities {
		densities[q] = make([]float64, size*size)
	}
	sums := make([]float64, n)

	// probs follows the support ordering: x, then y, then population.
	i := 0
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			cell := MergedID(Position{X: x, Y: y}, size)
			for q := 0; q < n; q++ {
				p := probs[i]
				i++
				if p < 0 {
					return fmt.Errorf("%w: negative probability %v for %v",
						ErrInvalidDistribution, p, StateKey{X: x, Y: y, T: s.time, Population: q})
				}
				densities[q][cell] = p
				sums[q] += p
			}
		}
	}
	for q, sum := range sums {
		if math.Abs(sum-1) > distributionTolerance {
			return fmt.Errorf("%w: population %d mass sums to %v, want 1", ErrInvalidDistribution, q, sum)
		}
	}

	cell := MergedID(s.pos, size)
	rewards := make([]float64, n)
	for p := 0; p < n; p++ {
		r := -math.Log(densities[p][cell] + RewardEpsilon)
		for q := 0; q < n; q++ {
			if q == p {
				continue
			}
			r += s.game.rewardCoefficient(p, q) * densities[q][cell]
		}
		rewards[p] = r
	}

	s.densities = densities
	s.rewards = rewards
	s.time++
	if s.time >= s.game.horizon {
		s.node = NodeTerminal
	} else {
		s.node = NodeChanceInit
	}
	return nil
}

// Rewards returns the per-population reward vector from the most recent
// mean-field resolution, or zeros before the first one.
func (s *State) Rewards() []float64 {
	out := make([]float64, s.game.populations)
	copy(out, s.rewards)
	return out
}

// Clone returns a deep, independent copy: mutating the clone never
// observes or changes the original.
func (s *State) Clone() *State {
	out := &State{
		game:          s.game,
		population:    s.population,
		time:          s.time,
		pos:           s.pos,
		hasPos:        s.hasPos,
		node:          s.node,
		pendingAction: s.pendingAction,
	}
	if s.densities != nil {
		out.densities = make([][]float64, len(s.densities))
		for q := range s.densities {
			out.densities[q] = append([]float64(nil), s.densities[q]...)
		}
	}
	if s.rewards != nil {
		out.rewards = append([]float64(nil), s.rewards...)
	}
	return out
}

// ActionString renders an action relative to the current node: the decoded
// cell at position-sampling chance nodes, the displacement otherwise.
func (s *State) ActionString(a Action) string {
	if s.node == NodeChanceInit {
		pos := PositionFromMerged(int(a), s.game.size)
		return fmt.Sprintf("[%d %d]", pos.X, pos.Y)
	}
	if a >= 0 && a < NumActions {
		d := a.Displacement()
		return fmt.Sprintf("[%d %d]", d.X, d.Y)
	}
	return fmt.Sprintf("action(%d)", int(a))
}

func (s *State) String() string {
	if !s.hasPos {
		return fmt.Sprintf("(pop=%d, t=%d, pos=unset)", s.population, s.time)
	}
	return fmt.Sprintf("(pop=%d, t=%d, pos=[%d %d])", s.population, s.time, s.pos.X, s.pos.Y)
}

// ObservationString is the agent-visible rendering of the current state.
func (s *State) ObservationString() string { return s.String() }

// InformationStateString equals ObservationString: the game is fully
// observable from the agent's own trajectory.
func (s *State) InformationStateString() string { return s.String() }
