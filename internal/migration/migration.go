package migration

import (
	"context"

	"gorla/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Statements are the schema statements in the order Run executes them
func (r *MigrationRunner) Statements() []string {
	return []string{createAuditRoundsTable, createAuditRoundResultsTable, createIndexes}
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, createAuditRoundsTable); err != nil {
		return errors.Wrap(err, "failed to create audit_rounds table")
	}

	if _, err := db.ExecContext(ctx, createAuditRoundResultsTable); err != nil {
		return errors.Wrap(err, "failed to create audit_round_results table")
	}

	if _, err := db.ExecContext(ctx, createIndexes); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

const createAuditRoundsTable = `
	CREATE TABLE IF NOT EXISTS audit_rounds (
		id UUID PRIMARY KEY,
		audit_id VARCHAR(64) NOT NULL,
		round INTEGER NOT NULL,
		phase VARCHAR(32) NOT NULL,
		new_sample_ids TEXT[] NOT NULL DEFAULT '{}',
		sampled_count INTEGER NOT NULL DEFAULT 0,
		hit_cap BOOLEAN NOT NULL DEFAULT false,
		complete BOOLEAN NOT NULL DEFAULT false,
		started_at TIMESTAMP WITH TIME ZONE NOT NULL,
		finished_at TIMESTAMP WITH TIME ZONE,
		UNIQUE (audit_id, round)
	)`

const createAuditRoundResultsTable = `
	CREATE TABLE IF NOT EXISTS audit_round_results (
		id UUID PRIMARY KEY,
		audit_id VARCHAR(64) NOT NULL,
		contest_id VARCHAR(255) NOT NULL,
		assertion_id VARCHAR(512) NOT NULL,
		round INTEGER NOT NULL,
		pvalue DOUBLE PRECISION NOT NULL,
		pvalue_min DOUBLE PRECISION NOT NULL,
		samples_used INTEGER NOT NULL,
		samples_needed INTEGER NOT NULL,
		max_sample_index_used INTEGER NOT NULL,
		status VARCHAR(32) NOT NULL,
		measured_rates JSONB,
		starting_test_statistic DOUBLE PRECISION NOT NULL DEFAULT 1,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE (audit_id, assertion_id, round)
	)`

const createIndexes = `
	CREATE INDEX IF NOT EXISTS idx_audit_round_results_audit ON audit_round_results(audit_id, round);
	CREATE INDEX IF NOT EXISTS idx_audit_round_results_contest ON audit_round_results(audit_id, contest_id)`
