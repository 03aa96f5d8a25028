package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorla/domain/core"
	"gorla/domain/round"
	"gorla/domain/stats"
	"gorla/internal/errors"
	"gorla/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// RoundRepositoryImpl implements RoundRepository for PostgreSQL
type RoundRepositoryImpl struct {
	db *sqlx.DB
}

// NewRoundRepository creates a new PostgreSQL round repository
func NewRoundRepository(db *sqlx.DB) ports.RoundRepository {
	return &RoundRepositoryImpl{db: db}
}

// roundRow is one row of audit_rounds
type roundRow struct {
	ID           uuid.UUID      `db:"id"`
	AuditID      string         `db:"audit_id"`
	Round        int            `db:"round"`
	Phase        string         `db:"phase"`
	NewSampleIDs pq.StringArray `db:"new_sample_ids"`
	SampledCount int            `db:"sampled_count"`
	HitCap       bool           `db:"hit_cap"`
	Complete     bool           `db:"complete"`
	StartedAt    time.Time      `db:"started_at"`
	FinishedAt   time.Time      `db:"finished_at"`
}

// resultRow is one row of audit_round_results
type resultRow struct {
	ID                    uuid.UUID `db:"id"`
	AuditID               string    `db:"audit_id"`
	ContestID             string    `db:"contest_id"`
	AssertionID           string    `db:"assertion_id"`
	Round                 int       `db:"round"`
	PValue                float64   `db:"pvalue"`
	PValueMin             float64   `db:"pvalue_min"`
	SamplesUsed           int       `db:"samples_used"`
	SamplesNeeded         int       `db:"samples_needed"`
	MaxSampleIndexUsed    int       `db:"max_sample_index_used"`
	Status                string    `db:"status"`
	MeasuredRates         []byte    `db:"measured_rates"`
	StartingTestStatistic float64   `db:"starting_test_statistic"`
}

func newRoundRow(auditID core.AuditID, ar round.AuditRound) roundRow {
	ids := make(pq.StringArray, len(ar.NewSampleIDs))
	for i, id := range ar.NewSampleIDs {
		ids[i] = id.String()
	}
	return roundRow{
		ID:           uuid.New(),
		AuditID:      auditID.String(),
		Round:        ar.Round,
		Phase:        ar.Phase.String(),
		NewSampleIDs: ids,
		SampledCount: ar.SampledCount,
		HitCap:       ar.HitCap,
		Complete:     ar.Complete,
		StartedAt:    ar.StartedAt.Time(),
		FinishedAt:   ar.FinishedAt.Time(),
	}
}

func newResultRow(auditID core.AuditID, res round.AssertionResult) (resultRow, error) {
	rates, err := json.Marshal(res.Result.MeasuredRates)
	if err != nil {
		return resultRow{}, err
	}
	return resultRow{
		ID:                    uuid.New(),
		AuditID:               auditID.String(),
		ContestID:             res.ContestID.String(),
		AssertionID:           res.AssertionID,
		Round:                 res.Result.Round,
		PValue:                res.Result.PValue,
		PValueMin:             res.Result.PValueMin,
		SamplesUsed:           res.Result.SamplesUsed,
		SamplesNeeded:         res.Result.SamplesNeeded,
		MaxSampleIndexUsed:    res.Result.MaxSampleIndexUsed,
		Status:                res.Result.Status.String(),
		MeasuredRates:         rates,
		StartingTestStatistic: res.Result.StartingTestStatistic,
	}, nil
}

func (row resultRow) toResult() (round.AssertionResult, error) {
	status, err := stats.ParseStatus(row.Status)
	if err != nil {
		return round.AssertionResult{}, err
	}
	var rates stats.DiscrepancyRates
	if len(row.MeasuredRates) > 0 {
		if err := json.Unmarshal(row.MeasuredRates, &rates); err != nil {
			return round.AssertionResult{}, fmt.Errorf("measured rates: %w", err)
		}
	}
	return round.AssertionResult{
		ContestID:   core.ContestID(row.ContestID),
		AssertionID: row.AssertionID,
		Result: round.AuditRoundResult{
			Round:                 row.Round,
			PValue:                row.PValue,
			PValueMin:             row.PValueMin,
			SamplesUsed:           row.SamplesUsed,
			SamplesNeeded:         row.SamplesNeeded,
			MaxSampleIndexUsed:    row.MaxSampleIndexUsed,
			Status:                status,
			MeasuredRates:         rates,
			StartingTestStatistic: row.StartingTestStatistic,
		},
	}, nil
}

// SaveRound stores the round summary and the results it produced in one transaction
func (r *RoundRepositoryImpl) SaveRound(ctx context.Context, auditID core.AuditID, ar round.AuditRound) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Database(err, "begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO audit_rounds (
			id, audit_id, round, phase, new_sample_ids, sampled_count,
			hit_cap, complete, started_at, finished_at
		) VALUES (
			:id, :audit_id, :round, :phase, :new_sample_ids, :sampled_count,
			:hit_cap, :complete, :started_at, :finished_at
		)
		ON CONFLICT (audit_id, round) DO UPDATE SET
			phase = EXCLUDED.phase,
			sampled_count = EXCLUDED.sampled_count,
			hit_cap = EXCLUDED.hit_cap,
			complete = EXCLUDED.complete,
			finished_at = EXCLUDED.finished_at
	`, newRoundRow(auditID, ar))
	if err != nil {
		return errors.Database(err, fmt.Sprintf("insert round %d", ar.Round))
	}

	for _, res := range ar.NewResults() {
		row, err := newResultRow(auditID, res)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO audit_round_results (
				id, audit_id, contest_id, assertion_id, round, pvalue, pvalue_min,
				samples_used, samples_needed, max_sample_index_used, status,
				measured_rates, starting_test_statistic
			) VALUES (
				:id, :audit_id, :contest_id, :assertion_id, :round, :pvalue, :pvalue_min,
				:samples_used, :samples_needed, :max_sample_index_used, :status,
				:measured_rates, :starting_test_statistic
			)
			ON CONFLICT (audit_id, assertion_id, round) DO NOTHING
		`, row)
		if err != nil {
			return errors.Database(err, "insert result for "+res.AssertionID)
		}
	}
	return errors.Database(tx.Commit(), "commit round")
}

// ListRounds returns every stored assertion result of an audit ordered by round
func (r *RoundRepositoryImpl) ListRounds(ctx context.Context, auditID core.AuditID) ([]round.AssertionResult, error) {
	var rows []resultRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, audit_id, contest_id, assertion_id, round, pvalue, pvalue_min,
		       samples_used, samples_needed, max_sample_index_used, status,
		       measured_rates, starting_test_statistic
		FROM audit_round_results
		WHERE audit_id = $1
		ORDER BY round, contest_id, assertion_id
	`, auditID.String())
	if err != nil {
		return nil, errors.Database(err, "list round results")
	}

	results := make([]round.AssertionResult, 0, len(rows))
	for _, row := range rows {
		res, err := row.toResult()
		if err != nil {
			return nil, errors.Wrapf(err, "decode result %s", row.ID)
		}
		results = append(results, res)
	}
	return results, nil
}
