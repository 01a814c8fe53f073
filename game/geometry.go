package game

import "fmt"

// Geometry selects the boundary policy of the grid.
type Geometry int

const (
	// Square clamps coordinates at the walls: an agent pushed against a
	// wall stays at the wall.
	Square Geometry = iota
	// Torus wraps coordinates modulo the grid size.
	Torus
)

func (g Geometry) String() string {
	switch g {
	case Square:
		return "square"
	case Torus:
		return "torus"
	}
	return fmt.Sprintf("geometry(%d)", int(g))
}

// ParseGeometry parses the textual geometry names used in configuration.
func ParseGeometry(s string) (Geometry, error) {
	switch s {
	case "square":
		return Square, nil
	case "torus":
		return Torus, nil
	}
	return 0, fmt.Errorf("%w: unknown geometry %q", ErrConfiguration, s)
}

// Position is a cell coordinate. Both coordinates are in [0, size).
type Position struct {
	X int
	Y int
}

// Action identifies a move at a decision node. At chance nodes actions are
// overloaded as outcome identifiers (merged position ids at the initial
// chance node, ActionStay at neutral chance nodes).
type Action int

const (
	ActionStay  Action = 0
	ActionRight Action = 1 // +x
	ActionUp    Action = 2 // +y
	ActionLeft  Action = 3 // -x
	ActionDown  Action = 4 // -y

	// NumActions is the size of the movement action set. It does not
	// depend on the grid geometry.
	NumActions = 5
)

// displacements maps each movement action to its unit displacement.
var displacements = [NumActions]Position{
	{0, 0},  // stay
	{1, 0},  // +x
	{0, 1},  // +y
	{-1, 0}, // -x
	{0, -1}, // -y
}

// Displacement returns the unit displacement of a movement action.
func (a Action) Displacement() Position {
	return displacements[a]
}

// MergedID flattens a position into a scalar in [0, size*size).
// It is the exact inverse of PositionFromMerged for every valid position.
func MergedID(pos Position, size int) int {
	return pos.Y*size + pos.X
}

// PositionFromMerged is the inverse of MergedID.
func PositionFromMerged(id, size int) Position {
	return Position{X: id % size, Y: id / size}
}

// Move applies a movement action to a position under the given boundary
// policy. It is a pure function: no state, no side effects.
func Move(pos Position, a Action, size int, geom Geometry) Position {
	d := displacements[a]
	x := pos.X + d.X
	y := pos.Y + d.Y

	switch geom {
	case Torus:
		x = (x%size + size) % size
		y = (y%size + size) % size
	default: // Square
		x = clamp(x, 0, size-1)
		y = clamp(y, 0, size-1)
	}

	return Position{X: x, Y: y}
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
