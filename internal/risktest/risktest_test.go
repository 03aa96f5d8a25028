package risktest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorla/domain/assort"
	"gorla/domain/contest"
	"gorla/domain/core"
	"gorla/domain/stats"
	"gorla/internal/betting"
)

type valueSampler struct {
	values []float64
	next   int
}

func (s *valueSampler) Sample() (float64, error) {
	if s.next >= len(s.values) {
		return 0, core.NewExhaustedError(len(s.values))
	}
	x := s.values[s.next]
	s.next++
	return x, nil
}

func (s *valueSampler) MaxSamples() int         { return len(s.values) }
func (s *valueSampler) MaxSampleIndexUsed() int { return s.next }

func constant(x float64, n int) *valueSampler {
	values := make([]float64, n)
	for i := range values {
		values[i] = x
	}
	return &valueSampler{values: values}
}

func noErrorStrategy() betting.Strategy {
	return betting.Strategy{Kind: betting.KindNoError, MaxRisk: betting.DefaultMaxRisk}
}

func TestPopulationMeanIfH0(t *testing.T) {
	tests := []struct {
		name string
		n    int
		wr   bool
		sum  float64
		j    int
		want float64
	}{
		{"with replacement", 100, false, 40, 51, .5},
		{"first draw", 100, true, 0, 1, .5},
		{"after winners", 100, true, 10, 11, 40.0 / 90},
		{"after losers", 100, true, 0, 11, 50.0 / 90},
		{"exhausted", 100, true, 50, 101, 0},
		{"unknown population", 0, true, 3, 4, .5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PopulationMeanIfH0(tt.n, tt.wr, .5, tt.sum, tt.j), 1e-12)
		})
	}
}

func TestMonotoneRejectionBound(t *testing.T) {
	const riskLimit = .05
	a := 1 / 1.9
	maxRisk := betting.DefaultMaxRisk
	lam := 2 * maxRisk
	tau := 1 + lam*(a-.5)
	want := int(math.Ceil(math.Log(1/riskLimit) / math.Log(tau)))

	mart, err := NewBettingMart(Options{RiskLimit: riskLimit, Upper: 2 * a}, noErrorStrategy(), a)
	require.NoError(t, err)
	seq := &Sequence{}
	mart.Sequence = seq

	result, err := mart.TestH0(context.Background(), 1000, true, 1, constant(a, 1000))
	require.NoError(t, err)
	assert.Equal(t, stats.StatusStatRejectNull, result.Status)
	assert.Equal(t, want, result.SampleCount)
	assert.Equal(t, want, result.SampleFirstUnderLimit)
	assert.Less(t, result.PValueLast, riskLimit)
	for _, st := range seq.Steps {
		assert.InDelta(t, lam, st.Wager, 1e-12)
	}
	wealth := seq.Wealth()
	require.Len(t, wealth, want)
	for i := 1; i < len(wealth); i++ {
		assert.Greater(t, wealth[i], wealth[i-1])
	}
	assert.Less(t, wealth[want-2], 1/riskLimit)
	assert.GreaterOrEqual(t, wealth[want-1], 1/riskLimit)
	assert.Zero(t, result.MeasuredRates.P1o+result.MeasuredRates.P2o)
}

func TestLimitReachedVersusInProgress(t *testing.T) {
	a := 1 / 1.9
	for _, populationLimit := range []bool{true, false} {
		t.Run(fmt.Sprintf("population=%v", populationLimit), func(t *testing.T) {
			opts := Options{RiskLimit: .05, Upper: 2 * a, PopulationLimit: populationLimit}
			mart, err := NewBettingMart(opts, noErrorStrategy(), a)
			require.NoError(t, err)

			result, err := mart.TestH0(context.Background(), 20, true, 1, constant(a, 20))
			require.NoError(t, err)
			assert.Equal(t, 20, result.SampleCount)
			assert.Zero(t, result.SampleFirstUnderLimit)
			if populationLimit {
				assert.Equal(t, stats.StatusLimitReached, result.Status)
			} else {
				assert.Equal(t, stats.StatusInProgress, result.Status)
			}
		})
	}
}

func TestSamplerExhaustionPropagates(t *testing.T) {
	a := 1 / 1.9
	mart, err := NewBettingMart(Options{RiskLimit: .05, Upper: 2 * a}, noErrorStrategy(), a)
	require.NoError(t, err)

	result, err := mart.TestH0(context.Background(), 50, true, 1, constant(0, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSamplerExhausted)
	assert.Equal(t, 10, result.SampleCount)
}

func TestContinuesPastRejection(t *testing.T) {
	a := 1 / 1.9
	mart, err := NewBettingMart(Options{RiskLimit: .05, Upper: 2 * a}, noErrorStrategy(), a)
	require.NoError(t, err)

	result, err := mart.TestH0(context.Background(), 200, false, 1, constant(a, 200))
	require.NoError(t, err)
	assert.Equal(t, 200, result.SampleCount)
	assert.Equal(t, stats.StatusStatRejectNull, result.Status)
	assert.Less(t, result.SampleFirstUnderLimit, 200)
	assert.Equal(t, result.PValueMin, result.PValueLast)
}

func TestStartingStatisticCarriesEvidence(t *testing.T) {
	a := 1 / 1.9
	mart, err := NewBettingMart(Options{RiskLimit: .05, Upper: 2 * a}, noErrorStrategy(), a)
	require.NoError(t, err)

	fresh, err := mart.TestH0(context.Background(), 1000, true, 1, constant(a, 1000))
	require.NoError(t, err)
	warm, err := mart.TestH0(context.Background(), 1000, true, 10, constant(a, 1000))
	require.NoError(t, err)
	assert.Less(t, warm.SampleCount, fresh.SampleCount)
}

func TestNeutralStepWhenNullMeanLeavesRange(t *testing.T) {
	// a tiny population of winners drives μ_j below zero before it is exhausted
	a := 1 / 1.9
	opts := Options{RiskLimit: .0001, Upper: 2 * a, N: 10, WithoutReplacement: true}
	mart, err := NewBettingMart(opts, noErrorStrategy(), a)
	require.NoError(t, err)
	seq := &Sequence{}
	mart.Sequence = seq

	_, err = mart.TestH0(context.Background(), 10, true, 1, constant(2*a, 10))
	require.NoError(t, err)
	neutral := 0
	for _, st := range seq.Steps {
		assert.False(t, math.IsNaN(st.T))
		assert.False(t, math.IsInf(st.T, 0))
		if st.Mu <= 0 {
			neutral++
			assert.Equal(t, 1.0, st.Tau)
		}
	}
	assert.Positive(t, neutral)
}

func TestInvalidOptions(t *testing.T) {
	_, err := NewBettingMart(Options{RiskLimit: 0, Upper: 1}, noErrorStrategy(), .52)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	_, err = NewBettingMart(Options{RiskLimit: .05, Upper: 1, WithoutReplacement: true}, noErrorStrategy(), .52)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	_, err = NewBettingMart(Options{RiskLimit: .05, Upper: 1}, betting.Strategy{Kind: betting.KindApriori, MaxRisk: .9}, .52)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	_, err = NewAlphaMart(Options{RiskLimit: .05, Upper: 1}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestCancelledContext(t *testing.T) {
	a := 1 / 1.9
	mart, err := NewBettingMart(Options{RiskLimit: .05, Upper: 2 * a}, noErrorStrategy(), a)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = mart.TestH0(ctx, 100, true, 1, constant(a, 100))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAlphaMartRejectsClearWinner(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 2000
	values := make([]float64, n)
	for i := range values {
		switch r := rng.Float64(); {
		case r < .6:
			values[i] = 1
		case r < .95:
			values[i] = 0
		default:
			values[i] = .5
		}
	}
	opts := Options{RiskLimit: .05, Upper: 1, N: n, WithoutReplacement: true, PopulationLimit: true}
	mart, err := NewAlphaMart(opts, betting.NewTruncShrinkage(1, .6))
	require.NoError(t, err)

	result, err := mart.TestH0(context.Background(), n, true, 1, &valueSampler{values: values})
	require.NoError(t, err)
	assert.Equal(t, stats.StatusStatRejectNull, result.Status)
	assert.Less(t, result.SampleCount, n)
}

func TestAlphaMartLosingWinnerNeverRejects(t *testing.T) {
	n := 1000
	values := make([]float64, n)
	for i := 0; i < 450; i++ {
		values[i] = 1
	}
	rng := rand.New(rand.NewSource(11))
	rng.Shuffle(n, func(i, j int) { values[i], values[j] = values[j], values[i] })
	opts := Options{RiskLimit: .05, Upper: 1, N: n, WithoutReplacement: true, PopulationLimit: true}
	mart, err := NewAlphaMart(opts, betting.NewTruncShrinkage(1, .55))
	require.NoError(t, err)

	result, err := mart.TestH0(context.Background(), n, true, 1, &valueSampler{values: values})
	require.NoError(t, err)
	assert.Equal(t, stats.StatusLimitReached, result.Status)
	assert.GreaterOrEqual(t, result.PValueMin, .05)
}

// pairSampler draws bassort values from (mvr, cvr) pairs in order
type pairSampler struct {
	clca  *assort.ClcaAssorter
	pairs []contest.CvrPair
	next  int
}

func (s *pairSampler) Sample() (float64, error) {
	if s.next >= len(s.pairs) {
		return 0, core.NewExhaustedError(len(s.pairs))
	}
	p := s.pairs[s.next]
	s.next++
	return s.clca.Bassort(p.Mvr, p.Cvr)
}

func (s *pairSampler) MaxSamples() int         { return len(s.pairs) }
func (s *pairSampler) MaxSampleIndexUsed() int { return s.next }

const race = core.ContestID("race")

func twoCandidateElection(n int, cvrMean float64, seed int64) (*contest.Contest, []contest.CvrPair) {
	winners := int(math.Round(float64(n) * cvrMean))
	pairs := make([]contest.CvrPair, n)
	for i := range pairs {
		cand := core.CandidateID("bob")
		if i < winners {
			cand = "alice"
		}
		cvr := contest.NewCvr(core.BallotID(fmt.Sprintf("card-%04d", i)), map[core.ContestID]core.CandidateID{race: cand})
		pairs[i] = contest.CvrPair{Mvr: cvr.Clone(), Cvr: cvr}
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })

	c := contest.New(contest.Params{
		ID:         race,
		Candidates: []core.CandidateID{"alice", "bob"},
		Votes:      map[core.CandidateID]int{"alice": winners, "bob": n - winners},
		Winners:    []core.CandidateID{"alice"},
		Nc:         n,
		Ncast:      n,
	})
	return c, pairs
}

func runEndToEnd(t *testing.T, c *contest.Contest, pairs []contest.CvrPair) stats.TestH0Result {
	t.Helper()
	assertions := assort.MakeAssertions(c, true, true)
	require.Len(t, assertions, 1)
	clca := assertions[0].Clca

	opts := Options{RiskLimit: .05, Upper: clca.UpperBound(), N: len(pairs), WithoutReplacement: true, PopulationLimit: true}
	mart, err := NewBettingMart(opts, noErrorStrategy(), clca.Noerror())
	require.NoError(t, err)
	result, err := mart.TestH0(context.Background(), len(pairs), true, 1, &pairSampler{clca: clca, pairs: pairs})
	require.NoError(t, err)
	return result
}

func TestEndToEndInjectedOverstatement(t *testing.T) {
	c, pairs := twoCandidateElection(1000, .55, 12345)
	clean := runEndToEnd(t, c, pairs)
	assert.Equal(t, stats.StatusStatRejectNull, clean.Status)
	assert.Less(t, clean.SampleCount, 1000)
	assert.Zero(t, clean.MeasuredRates.P1o)

	// one-vote overstatement at draw 50: the card reported for the winner was blank
	const at = 49
	for i := at; pairs[at].Cvr.VoteFor(race, "alice") == 0; i++ {
		pairs[at], pairs[i+1] = pairs[i+1], pairs[at]
	}
	dirty := make([]contest.CvrPair, len(pairs))
	copy(dirty, pairs)
	dirty[at].Mvr = contest.NewCvr(dirty[at].Mvr.ID, map[core.ContestID]core.CandidateID{race: ""})

	cleanAgain := runEndToEnd(t, c, pairs)
	withError := runEndToEnd(t, c, dirty)
	assert.Equal(t, stats.StatusStatRejectNull, withError.Status)
	assert.Greater(t, withError.SampleCount, cleanAgain.SampleCount)
	assert.Less(t, withError.SampleCount, 1000)
	assert.Positive(t, withError.MeasuredRates.P1o)
}
