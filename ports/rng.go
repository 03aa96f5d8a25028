package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// Stream creates a deterministic stream for one estimation trial of one assertion.
	// The same (contest, assertion, trial, seed) always yields the same stream.
	Stream(ctx context.Context, contestID, assertionID string, trial int, baseSeed int64) (*rand.Rand, error)
}
