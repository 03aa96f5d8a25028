package ports

import (
	"context"

	"gorla/domain/core"
	"gorla/domain/round"
)

// RoundRepository persists completed audit rounds
type RoundRepository interface {
	// SaveRound stores every assertion result of a completed round
	SaveRound(ctx context.Context, auditID core.AuditID, r round.AuditRound) error

	// ListRounds returns the stored results of an audit ordered by round
	ListRounds(ctx context.Context, auditID core.AuditID) ([]round.AssertionResult, error)
}
