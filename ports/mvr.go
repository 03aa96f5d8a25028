package ports

import (
	"context"

	"gorla/domain/contest"
	"gorla/domain/core"
)

// MvrSource delivers the audited records for the cards selected in a round
type MvrSource interface {
	// Pairs returns one (mvr, cvr) pair per requested id, in the order of ids.
	// A manifest card whose ballot cannot be located is returned with a phantom
	// mvr. An id the source has no reported record for is an error.
	Pairs(ctx context.Context, round int, ids []core.BallotID) ([]contest.CvrPair, error)
}
