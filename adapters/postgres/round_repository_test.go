package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorla/domain/core"
	"gorla/domain/round"
	"gorla/domain/stats"
)

func TestResultRowConversion(t *testing.T) {
	res := round.AssertionResult{
		ContestID:   "mayor",
		AssertionID: "mayor/winner>loser",
		Result: round.AuditRoundResult{
			Round:                 2,
			PValue:                .031,
			PValueMin:             .02,
			SamplesUsed:           120,
			SamplesNeeded:         97,
			MaxSampleIndexUsed:    240,
			Status:                stats.StatusStatRejectNull,
			MeasuredRates:         stats.DiscrepancyRates{P1o: .01, P2u: .002},
			StartingTestStatistic: 1,
		},
	}

	row, err := newResultRow("audit-7", res)
	require.NoError(t, err)
	assert.Equal(t, "audit-7", row.AuditID)
	assert.Equal(t, "StatRejectNull", row.Status)
	assert.JSONEq(t, `{"p2o":0,"p1o":0.01,"p1u":0,"p2u":0.002}`, string(row.MeasuredRates))

	back, err := row.toResult()
	require.NoError(t, err)
	assert.Equal(t, res, back)
}

func TestResultRowRejectsBadData(t *testing.T) {
	_, err := resultRow{Status: "Finished"}.toResult()
	assert.Error(t, err)

	_, err = resultRow{Status: "InProgress", MeasuredRates: []byte("{")}.toResult()
	assert.Error(t, err)

	res, err := resultRow{Status: "LimitReached"}.toResult()
	require.NoError(t, err)
	assert.True(t, res.Result.MeasuredRates.IsZero())
}

func TestRoundRow(t *testing.T) {
	started := time.Date(2024, 11, 12, 9, 0, 0, 0, time.UTC)
	ar := round.AuditRound{
		Round:        1,
		Phase:        round.PhaseRoundComplete,
		NewSampleIDs: []core.BallotID{"card-000004", "card-000001"},
		SampledCount: 2,
		StartedAt:    core.NewTimestamp(started),
	}
	row := newRoundRow("audit-7", ar)
	assert.Equal(t, "RoundComplete", row.Phase)
	assert.Equal(t, []string{"card-000004", "card-000001"}, []string(row.NewSampleIDs))
	assert.Equal(t, started, row.StartedAt)
	assert.NotEqual(t, newRoundRow("audit-7", ar).ID, row.ID)
}
