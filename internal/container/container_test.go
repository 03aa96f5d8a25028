package container

import (
	"context"
	"testing"

	"gorla/domain/stats"
	"gorla/internal/config"
	"gorla/internal/errors"
	"gorla/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestConnectRequiresDatabaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.Database.URL = ""
	c, err := New(&cfg)
	require.NoError(t, err)

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	assert.Nil(t, c.RoundRepo)
	assert.NoError(t, c.Close())
}

func TestInitWithDatabaseRejectsNil(t *testing.T) {
	cfg := config.Default()
	c, err := New(&cfg)
	require.NoError(t, err)
	assert.Error(t, c.InitWithDatabase(context.Background(), nil))
}

func TestNewAuditWithoutDatabase(t *testing.T) {
	cfg := config.Default()
	cfg.NTrials = 20
	c, err := New(&cfg)
	require.NoError(t, err)

	election, err := testkit.NewElectionGenerator(testkit.ElectionGeneratorConfig{
		NCards:   2000,
		Contests: []testkit.ContestSpec{testkit.TwoCandidateSpec("mayor", 0.6)},
		Seed:     7,
	}).Generate()
	require.NoError(t, err)
	audit, err := c.NewAudit(context.Background(), election.Contests, election.Cvrs)
	require.NoError(t, err)

	source := testkit.NewInMemoryMvrSource(testkit.MakePairs(election.Cvrs, election.Cvrs))
	_, err = audit.Run(context.Background(), source)
	require.NoError(t, err)
	assert.True(t, audit.Complete())
	for _, status := range audit.Statuses() {
		assert.Equal(t, stats.StatusStatRejectNull, status)
	}
}
