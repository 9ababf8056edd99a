package mecgame

import "errors"

// Errors returned by the simulation. Each is wrapped with the detail of the
// failure, so callers test for them with errors.Is.
var (
	// ErrInvalidParams reports a parameter description that cannot describe a model
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrNegativePrice reports a pricing best response below zero
	ErrNegativePrice = errors.New("negative price")

	// ErrGameNotConverged reports that the offloading/pricing game hit its iteration cap
	ErrGameNotConverged = errors.New("offloading/pricing game did not converge")

	// ErrSelectionNotConverged reports that the outer loop hit its round cap
	// before every user was sure of its server
	ErrSelectionNotConverged = errors.New("server selection did not converge")

	// ErrProbabilityDrift reports a probability row that no longer sums to one
	ErrProbabilityDrift = errors.New("probability row does not sum to one")
)

// errEventLoopStopped reports that the timeslot events ran out before the
// round cap with users still unsure and no timeslot failing
var errEventLoopStopped = errors.New("timeslot events stopped early")
