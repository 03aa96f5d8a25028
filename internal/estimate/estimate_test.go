package estimate

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorla/domain/assort"
	"gorla/domain/contest"
	"gorla/domain/core"
	"gorla/domain/stats"
	"gorla/internal/config"
	"gorla/internal/testkit"
)

func twoCandidate(id core.ContestID, n int, cvrMean float64) *contest.Contest {
	w := int(float64(n) * cvrMean)
	return contest.New(contest.Params{
		ID:         id,
		Candidates: []core.CandidateID{"alice", "bob"},
		Votes:      map[core.CandidateID]int{"alice": w, "bob": n - w},
		Winners:    []core.CandidateID{"alice"},
		Nc:         n,
		Ncast:      n,
	})
}

func testConfig(strategy string) *config.AuditConfig {
	cfg := config.Default()
	cfg.NTrials = 20
	cfg.Betting.Strategy = strategy
	return &cfg
}

func clcaRequest(c *contest.Contest) Request {
	return Request{Assertion: assort.MakeAssertions(c, true, true)[0]}
}

func TestRunRepeatedResultSummaries(t *testing.T) {
	r := newRunRepeatedResult(5, 100)
	for _, n := range []int{10, 20, 30, 40} {
		r.add(stats.TestH0Result{Status: stats.StatusStatRejectNull, SampleFirstUnderLimit: n})
	}
	r.add(stats.TestH0Result{Status: stats.StatusLimitReached, SampleCount: 100})

	assert.Equal(t, 4, r.Successes())
	assert.InDelta(t, .8, r.SuccessRate(), 1e-12)
	assert.InDelta(t, 25, r.Mean(), 1e-12)
	assert.InDelta(t, 125, r.Variance(), 1e-12)
	assert.Equal(t, 30, r.Quantile(.75))
	assert.Equal(t, 40, r.Quantile(1))
	assert.Equal(t, [10]int{1, 1, 1, 1, 0, 0, 0, 0, 0, 0}, r.Deciles())
	assert.Equal(t, 1, r.StatusCounts[stats.StatusLimitReached])
	assert.Zero(t, newRunRepeatedResult(3, 10).Quantile(.8))
}

func TestNoErrorEstimate(t *testing.T) {
	est := New(testConfig("noerror"), testkit.NewRNGAdapter(), nil)
	c := twoCandidate("mayor", 1000, .55)

	got, err := est.EstimateAssertion(context.Background(), clcaRequest(c))
	require.NoError(t, err)
	assert.Equal(t, 20, got.Result.Successes())
	assert.Greater(t, got.SampleSize, 30)
	assert.Less(t, got.SampleSize, 100)
	assert.Zero(t, got.Result.Variance(), "a population without errors is the same in every order")
}

func TestEstimateIsDeterministic(t *testing.T) {
	cfg := testConfig("fuzztable")
	cfg.Betting.FuzzPct = .02
	c := twoCandidate("mayor", 2000, .56)

	first, err := New(cfg, testkit.NewRNGAdapter(), nil).EstimateAssertion(context.Background(), clcaRequest(c))
	require.NoError(t, err)
	second, err := New(cfg, testkit.NewRNGAdapter(), nil).EstimateAssertion(context.Background(), clcaRequest(c))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestErrorsRaiseEstimate(t *testing.T) {
	c := twoCandidate("mayor", 2000, .56)
	clean, err := New(testConfig("noerror"), testkit.NewRNGAdapter(), nil).EstimateAssertion(context.Background(), clcaRequest(c))
	require.NoError(t, err)

	cfg := testConfig("fuzztable")
	cfg.Betting.FuzzPct = .02
	fuzzed, err := New(cfg, testkit.NewRNGAdapter(), nil).EstimateAssertion(context.Background(), clcaRequest(c))
	require.NoError(t, err)
	assert.Greater(t, fuzzed.SampleSize, clean.SampleSize)
}

func TestNoSuccessMeansFullCount(t *testing.T) {
	cfg := testConfig("apriori")
	cfg.Betting.AprioriRates = &stats.DiscrepancyRates{P2o: .05}
	c := twoCandidate("mayor", 500, .51)

	got, err := New(cfg, testkit.NewRNGAdapter(), nil).EstimateAssertion(context.Background(), clcaRequest(c))
	require.NoError(t, err)
	assert.Zero(t, got.Result.Successes())
	assert.Equal(t, 500, got.SampleSize)
	assert.Equal(t, 20, got.Result.StatusCounts[stats.StatusLimitReached])
}

func TestEstimateGrowsPastPriorSamples(t *testing.T) {
	est := New(testConfig("noerror"), testkit.NewRNGAdapter(), nil)
	req := clcaRequest(twoCandidate("mayor", 1000, .55))
	req.PriorSamples = 200

	got, err := est.EstimateAssertion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 250, got.SampleSize)

	req.PriorSamples = 900
	got, err = est.EstimateAssertion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1000, got.SampleSize, "never more than the population")
}

func TestPollingEstimate(t *testing.T) {
	cfg := testConfig("noerror")
	cfg.Type = config.AuditTypePolling
	c := twoCandidate("mayor", 10000, .6)
	req := Request{Assertion: assort.MakeAssertions(c, false, true)[0]}

	got, err := New(cfg, testkit.NewRNGAdapter(), nil).EstimateAssertion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Strategy)
	assert.GreaterOrEqual(t, got.Result.SuccessRate(), .9)
	assert.Less(t, got.SampleSize, 1000)
}

func TestPairSimulationEstimate(t *testing.T) {
	election, err := testkit.NewElectionGenerator(testkit.ElectionGeneratorConfig{
		NCards:   2000,
		Seed:     5,
		Contests: []testkit.ContestSpec{testkit.TwoCandidateSpec("race", .55)},
	}).Generate()
	require.NoError(t, err)
	mvrs := testkit.Fuzz(election.Cvrs, election.Contests, .01, rand.New(rand.NewSource(1)))
	c := election.Contests[0]
	req := clcaRequest(c)
	req.Pairs = testkit.MakePairs(mvrs, election.Cvrs)

	got, err := New(testConfig("generaladaptive"), testkit.NewRNGAdapter(), nil).EstimateAssertion(context.Background(), req)
	require.NoError(t, err)
	assert.Positive(t, got.Result.Successes())
	assert.Less(t, got.SampleSize, 2000)
}

func TestSimulationRatesFallback(t *testing.T) {
	c := contest.New(contest.Params{
		ID:         "mayor",
		Candidates: []core.CandidateID{"alice", "bob", "carol"},
		Votes:      map[core.CandidateID]int{"alice": 500, "bob": 400, "carol": 50},
		Winners:    []core.CandidateID{"alice"},
		Nc:         1000,
		Ncast:      990,
	})
	cfg := testConfig("noerror")
	est := New(cfg, testkit.NewRNGAdapter(), nil)
	assert.Equal(t, stats.DiscrepancyRates{P1o: .01}, est.SimulationRates(c, nil), "phantom floor")

	cfg.Betting.AprioriRates = &stats.DiscrepancyRates{P2o: .001, P1o: .02}
	assert.Equal(t, *cfg.Betting.AprioriRates, est.SimulationRates(c, nil))

	cfg.Betting.FuzzPct = .01
	want, err := cfg.RateTable().Lookup(3, .01)
	require.NoError(t, err)
	assert.Equal(t, want.FloorP1o(.01), est.SimulationRates(c, nil))

	measured := stats.DiscrepancyRates{P1o: .03}
	assert.Equal(t, measured, est.SimulationRates(c, &measured))
}

type failingRNG struct {
	*testkit.RNGAdapter
	contest string
}

func (f failingRNG) Stream(ctx context.Context, contestID, assertionID string, trial int, seed int64) (*rand.Rand, error) {
	if contestID == f.contest {
		return nil, errors.New("rng unavailable")
	}
	return f.RNGAdapter.Stream(ctx, contestID, assertionID, trial, seed)
}

func TestEstimateContestsIsolatesFailures(t *testing.T) {
	est := New(testConfig("noerror"), failingRNG{RNGAdapter: testkit.NewRNGAdapter(), contest: "bad"}, nil)
	good := twoCandidate("good", 1000, .55)
	bad := twoCandidate("bad", 1000, .55)
	other := twoCandidate("other", 1000, .6)

	reqs := []ContestRequest{
		{Contest: good, Requests: []Request{clcaRequest(good)}},
		{Contest: bad, Requests: []Request{clcaRequest(bad)}},
		{Contest: other, Requests: []Request{clcaRequest(other)}},
	}
	results := est.EstimateContests(context.Background(), reqs)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, core.ContestID("other"), results[2].ContestID)
	assert.Less(t, results[2].SampleSize, results[0].SampleSize)
}
