package container

import (
	"context"
	"fmt"

	"gorla/adapters/postgres"
	"gorla/domain/contest"
	"gorla/internal"
	"gorla/internal/config"
	"gorla/internal/errors"
	"gorla/internal/estimate"
	"gorla/internal/migration"
	"gorla/internal/testkit"
	"gorla/internal/workflow"
	"gorla/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.AuditConfig
	Logger *internal.Logger

	// Infrastructure
	DB *sqlx.DB

	// Repositories (data access layer)
	RoundRepo ports.RoundRepository

	// Randomness for sampling and estimation
	RNG ports.RNGPort
}

// New creates a new dependency injection container
func New(cfg *config.AuditConfig) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return &Container{
		Config: cfg,
		Logger: internal.DefaultLogger,
		RNG:    testkit.NewRNGAdapter(),
	}, nil
}

// Connect opens the configured database, runs the migrations and initializes
// the repositories
func (c *Container) Connect(ctx context.Context) error {
	if c.Config.Database.URL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.Connect("postgres", c.Config.Database.URL)
	if err != nil {
		return errors.Database(err, "failed to connect to database")
	}
	if err := c.InitWithDatabase(ctx, db); err != nil {
		db.Close()
		return err
	}
	return nil
}

// InitWithDatabase initializes components that require database access
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	c.DB = db

	// Test database connection
	if err := db.PingContext(ctx); err != nil {
		return errors.Database(err, "database connection test failed")
	}

	if err := migration.NewRunner().Run(ctx, db); err != nil {
		return errors.Wrap(err, "database migration failed")
	}

	c.initRepositories()
	c.Logger.Info("container initialized with database connection")
	return nil
}

// initRepositories initializes data access repositories
func (c *Container) initRepositories() {
	c.RoundRepo = postgres.NewRoundRepository(c.DB)
}

// NewAudit builds an audit from the container's dependencies
func (c *Container) NewAudit(ctx context.Context, contests []*contest.Contest, cvrs []contest.Cvr) (*workflow.Audit, error) {
	return workflow.New(ctx, workflow.Params{
		Config:     c.Config,
		Contests:   contests,
		Cvrs:       cvrs,
		RNG:        c.RNG,
		Repository: c.RoundRepo,
		Logger:     c.Logger,
	})
}

// NewEstimator builds a sample size estimator from the container's dependencies
func (c *Container) NewEstimator() *estimate.Estimator {
	return estimate.New(c.Config, c.RNG, c.Logger)
}

// Close releases the database connection, if any
func (c *Container) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
