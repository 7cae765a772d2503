package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrTransient     = errors.New("transient network error")
	ErrInvalidSource = errors.New("invalid source")
	ErrInvalidPrice  = errors.New("price out of range")
	ErrInvalidEvent  = errors.New("invalid event payload")

	// ErrInvariantViolation marks a portfolio whose slot accounting no longer
	// adds up. It stays set until the portfolio is reset.
	ErrInvariantViolation = errors.New("portfolio invariant violated")
)

// IsTransient reports whether err is a failure a poller should absorb with
// backoff rather than surface.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}
