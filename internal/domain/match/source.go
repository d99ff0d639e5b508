package match

import "context"

// Source yields the two upstream views of a fixture. Each call blocks until
// the first qualifying message arrives, the stream fails or ctx is done.
type Source interface {
	PartialMatch(ctx context.Context, fixtureID string) (PartialMatch, error)
	MatchFrames(ctx context.Context, fixtureID string) ([]PossessionFrame, error)
}

// IdentityLookup resolves opaque ids into display names. found=false with a
// nil error means the upstream knows no such id.
type IdentityLookup interface {
	PlayerName(ctx context.Context, playerID string) (name string, found bool, err error)
	ClubName(ctx context.Context, clubID string) (name string, found bool, err error)
}
