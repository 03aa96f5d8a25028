// Package estimate projects how many samples each contest needs by running the
// risk test many times on simulated samples.
package estimate

import (
	"context"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"gorla/domain/assort"
	"gorla/domain/contest"
	"gorla/domain/core"
	"gorla/domain/stats"
	"gorla/internal"
	"gorla/internal/betting"
	"gorla/internal/config"
	"gorla/internal/errors"
	"gorla/internal/metrics"
	"gorla/internal/risktest"
	"gorla/internal/sampling"
	"gorla/ports"
)

// growthWhenStalled is the fraction by which an estimate must exceed the samples
// already used when the simulation says no more are needed
const growthWhenStalled = 0.25

// Request describes one assertion to estimate
type Request struct {
	Assertion    assort.Assertion
	N            int                     // population size; 0 means the contest's Nc
	PriorSamples int                     // samples this assertion has already used
	Measured     *stats.DiscrepancyRates // rates seen in the previous round, if any
	Pairs        []contest.CvrPair       // simulate from these cards instead of a model
}

// Estimate is the projected sample size for one assertion
type Estimate struct {
	AssertionID string
	Strategy    string
	SampleSize  int
	Result      RunRepeatedResult
}

// ContestRequest groups the assertions of one contest
type ContestRequest struct {
	Contest  *contest.Contest
	Requests []Request
}

// ContestEstimate is the projection for a contest: the largest estimate of any
// of its assertions. Err is set when the estimate could not be made.
type ContestEstimate struct {
	ContestID  core.ContestID
	SampleSize int
	Estimates  []Estimate
	Err        error
}

type simulation interface {
	sampling.Sampler
	Reseed(rng *rand.Rand)
}

// Estimator runs Monte Carlo sample size estimates
type Estimator struct {
	cfg    *config.AuditConfig
	rng    ports.RNGPort
	logger *internal.Logger
}

// New creates an estimator; a nil logger uses the default logger
func New(cfg *config.AuditConfig, rng ports.RNGPort, logger *internal.Logger) *Estimator {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Estimator{cfg: cfg, rng: rng, logger: logger.With("component", "estimate")}
}

// EstimateAssertion runs cfg.NTrials trials and returns the configured quantile
// of the samples needed by the successful trials. If no trial succeeds the
// estimate is the whole population.
func (e *Estimator) EstimateAssertion(ctx context.Context, req Request) (Estimate, error) {
	a := req.Assertion
	c := a.Contest
	n := req.N
	if n <= 0 {
		n = c.Nc
	}

	seedRng, err := e.rng.Stream(ctx, string(c.ID), a.ID(), -1, e.cfg.Seed)
	if err != nil {
		return Estimate{}, err
	}
	sim, err := e.simulation(req, n, seedRng)
	if err != nil {
		return Estimate{}, err
	}
	test, strategyName, err := e.riskTest(req, sim.MaxSamples())
	if err != nil {
		return Estimate{}, err
	}

	result := newRunRepeatedResult(e.cfg.NTrials, sim.MaxSamples())
	for trial := 0; trial < e.cfg.NTrials; trial++ {
		rng, err := e.rng.Stream(ctx, string(c.ID), a.ID(), trial, e.cfg.Seed)
		if err != nil {
			return Estimate{}, err
		}
		sim.Reseed(rng)
		res, err := test.TestH0(ctx, sim.MaxSamples(), true, 1, sim)
		if err != nil {
			return Estimate{}, errors.EstimationFailed(string(c.ID), err)
		}
		result.add(res)
		metrics.RecordTrial(string(e.cfg.Type), res.Status.String())
	}

	size := result.Quantile(e.cfg.Quantile)
	if result.Successes() == 0 {
		size = n
	}
	if size <= req.PriorSamples {
		grown := req.PriorSamples + int(math.Ceil(growthWhenStalled*float64(req.PriorSamples)))
		e.logger.Debug("assertion %s: estimate %d not above %d samples already used, growing to %d",
			a.ID(), size, req.PriorSamples, grown)
		size = max(grown, req.PriorSamples+1)
	}
	size = min(size, n)

	e.logger.Debug("assertion %s strategy=%s estimate=%d %s", a.ID(), strategyName, size, result)
	return Estimate{AssertionID: a.ID(), Strategy: strategyName, SampleSize: size, Result: *result}, nil
}

// EstimateContest estimates every assertion of a contest in order
func (e *Estimator) EstimateContest(ctx context.Context, req ContestRequest) ContestEstimate {
	out := ContestEstimate{ContestID: req.Contest.ID}
	for _, r := range req.Requests {
		est, err := e.EstimateAssertion(ctx, r)
		if err != nil {
			out.Err = err
			return out
		}
		out.Estimates = append(out.Estimates, est)
		out.SampleSize = max(out.SampleSize, est.SampleSize)
	}
	if req.Contest.Nc > 0 {
		metrics.RecordEstimate(float64(out.SampleSize) / float64(req.Contest.Nc))
	}
	return out
}

// EstimateContests estimates contests in parallel. Results are in request order;
// a failed contest carries its error without affecting the others.
func (e *Estimator) EstimateContests(ctx context.Context, reqs []ContestRequest) []ContestEstimate {
	results := make([]ContestEstimate, len(reqs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.cfg.Concurrency))

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = e.EstimateContest(gCtx, req)
			if results[i].Err != nil {
				e.logger.Warn("contest %s: estimation failed: %v", req.Contest.ID, results[i].Err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// simulation builds the population the trials sample from
func (e *Estimator) simulation(req Request, n int, rng *rand.Rand) (simulation, error) {
	a := req.Assertion
	if req.Pairs != nil {
		return sampling.NewPairSimulation(a, req.Pairs, e.cfg.HasStyle, rng)
	}
	if !a.IsComparison() {
		return sampling.NewPollingSimulation(a, rng), nil
	}
	rates := e.SimulationRates(a.Contest, req.Measured)
	return sampling.NewClcaSimulation(a.Noerror(), n, rates, rng), nil
}

// SimulationRates are the discrepancy rates assumed for a contest: the measured
// rates when there are any, else the fuzz table when a fuzz percentage is
// configured, else the a priori rates, else none. One-vote overstatements are
// never below the phantom rate.
func (e *Estimator) SimulationRates(c *contest.Contest, measured *stats.DiscrepancyRates) stats.DiscrepancyRates {
	var rates stats.DiscrepancyRates
	switch {
	case measured != nil:
		rates = *measured
	case e.cfg.Betting.FuzzPct > 0:
		table := e.cfg.RateTable()
		looked, err := table.Lookup(c.NumCandidates(), e.cfg.Betting.FuzzPct)
		if err != nil {
			e.logger.Warn("contest %s: %v, assuming no errors", c.ID, err)
		}
		rates = looked
	case e.cfg.Betting.AprioriRates != nil:
		rates = *e.cfg.Betting.AprioriRates
	}
	return rates.FloorP1o(c.PhantomRate())
}

// riskTest builds the test the trials run, falling back to the no-error
// strategy when the configured one cannot be built for this contest.
func (e *Estimator) riskTest(req Request, n int) (risktest.RiskTest, string, error) {
	opts := TestOptions(e.cfg, req.Assertion, n)
	test, name, err := RiskTest(e.cfg, req.Assertion, opts, req.Measured)
	if err == nil || !req.Assertion.IsComparison() {
		return test, name, err
	}
	c := req.Assertion.Contest
	e.logger.Warn("contest %s: %v, estimating with the noerror strategy", c.ID, err)
	strategy := betting.Strategy{Kind: betting.KindNoError, MaxRisk: betting.DefaultMaxRisk}
	bm, err := risktest.NewBettingMart(opts, strategy, req.Assertion.Noerror())
	return bm, strategy.String(), err
}

// RiskTest builds the configured test for an assertion: the betting strategy for
// comparison audits and ALPHA for polling audits. It also returns a short name
// for the test.
func RiskTest(cfg *config.AuditConfig, a assort.Assertion, opts risktest.Options, measured *stats.DiscrepancyRates) (risktest.RiskTest, string, error) {
	if !a.IsComparison() {
		eta := betting.NewTruncShrinkage(a.UpperBound(), a.Assorter.ReportedMean())
		if cfg.Alpha.D > 0 {
			eta.D = cfg.Alpha.D
		}
		eta.F = cfg.Alpha.F
		test, err := risktest.NewAlphaMart(opts, eta)
		return test, "alpha", err
	}

	c := a.Contest
	strategy, err := cfg.Strategy(c.PhantomRate(), c.NumCandidates(), measured)
	if err != nil {
		return nil, "", err
	}
	test, err := risktest.NewBettingMart(opts, strategy, a.Noerror())
	return test, strategy.String(), err
}

// TestOptions are the test options for sampling an assertion from a population
// of n cards until it is exhausted
func TestOptions(cfg *config.AuditConfig, a assort.Assertion, n int) risktest.Options {
	return risktest.Options{
		RiskLimit:          cfg.RiskLimit,
		N:                  n,
		WithoutReplacement: true,
		Upper:              a.UpperBound(),
		PopulationLimit:    true,
	}
}
