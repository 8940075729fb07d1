package cycle

import "errors"

var (
	// ErrInvalidTask rejects nil or empty tasks at cycle start.
	ErrInvalidTask = errors.New("task must not be nil or empty")

	// ErrNoCycleStarted is returned by operations that require StartCycle to
	// have been called first.
	ErrNoCycleStarted = errors.New("no cycle has been started")

	// ErrAlreadyAtFinalPhase is returned when progressing past Retrospect.
	ErrAlreadyAtFinalPhase = errors.New("already at final phase")

	// ErrUnknownPhase is returned for phase names outside the fixed sequence.
	ErrUnknownPhase = errors.New("unknown phase")

	// ErrUnmetDependencies is returned when a manifest declares dependencies
	// for a phase that have not completed.
	ErrUnmetDependencies = errors.New("phase dependencies not met")

	// ErrRecursionDepthExceeded refuses micro-cycle creation past the
	// configured depth limit.
	ErrRecursionDepthExceeded = errors.New("maximum recursion depth exceeded")
)

// RecursionTerminatedError is returned when a termination heuristic vetoes
// micro-cycle creation. Reason names the heuristic that fired.
type RecursionTerminatedError struct {
	Reason string
}

func (e *RecursionTerminatedError) Error() string {
	return "recursion terminated: " + e.Reason
}
