package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUpstreamStream        = errors.New("upstream stream failure")
	ErrIdentityLookup        = errors.New("identity lookup failed")
	ErrCompletion            = errors.New("completion request failed")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrNarrativeTimeout      = errors.New("timed out waiting for match data")
	ErrEmptyNarrative        = errors.New("possession narrative is empty")
)
