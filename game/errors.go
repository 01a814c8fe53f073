package game

import "errors"

// Every failure in this package is a usage error at the boundary: there is
// no I/O and no transient failure mode. Callers should treat any of these
// as fatal for the current episode instance.
var (
	// ErrConfiguration reports invalid construction parameters.
	ErrConfiguration = errors.New("invalid game configuration")
	// ErrInvalidAction reports an action outside the currently legal set.
	// The state is left unchanged.
	ErrInvalidAction = errors.New("invalid action")
	// ErrInvalidDistribution reports a distribution whose support or
	// normalization does not match what the state expects. The state is
	// left unchanged.
	ErrInvalidDistribution = errors.New("invalid distribution")
	// ErrIllegalOperation reports an operation invoked at the wrong node
	// type, including any mutation of a terminal state.
	ErrIllegalOperation = errors.New("illegal operation")
)
