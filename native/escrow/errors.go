package escrow

import "errors"

var (
	// ErrInsufficientFunds is returned when deal creation is underfunded:
	// either the attached value is below budget+penalty or the employer's
	// account cannot cover the attached value.
	ErrInsufficientFunds = errors.New("escrow: insufficient funds sent")
	// ErrNotFound is returned when the deal identifier is unknown.
	ErrNotFound = errors.New("escrow: deal not found")
	// ErrUnauthorized is returned when the caller is not the party required
	// for the requested transition.
	ErrUnauthorized = errors.New("escrow: caller not authorized")
	// ErrNotAvailable is returned when acceptance is attempted on a deal that
	// is no longer OPEN.
	ErrNotAvailable = errors.New("escrow: deal not available")
	// ErrNotActive is returned when a settling transition is attempted on a
	// deal that is not ACTIVE.
	ErrNotActive = errors.New("escrow: deal not active")
)
