package risktest

import (
	"context"

	"gorla/domain/stats"
	"gorla/internal/betting"
	"gorla/internal/tracker"
)

// BettingMart is the betting supermartingale for comparison audits:
// τ_j = 1 + λ_j(x_j − μ_j), with λ_j chosen by Strategy.
type BettingMart struct {
	Options
	Strategy betting.Strategy
	Noerror  float64
}

// NewBettingMart validates the strategy and returns the test
func NewBettingMart(opts Options, strategy betting.Strategy, noerror float64) (*BettingMart, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	return &BettingMart{Options: opts, Strategy: strategy, Noerror: noerror}, nil
}

// TestH0 consumes up to maxSamples values and reports the result. The measured
// discrepancy rates of the values seen are included in the result.
func (b *BettingMart) TestH0(ctx context.Context, maxSamples int, terminateOnNullReject bool, startingT float64, sampler Sampler) (stats.TestH0Result, error) {
	trk := tracker.NewClcaErrorTracker(b.Noerror)
	wager := func(mu float64) float64 {
		return b.Strategy.Bet(betting.BetState{Mu: mu, Noerror: b.Noerror, Upper: b.Upper, Errors: trk})
	}
	factor := func(x, mu, lam float64) float64 {
		return 1 + lam*(x-mu)
	}
	result, err := b.run(ctx, maxSamples, terminateOnNullReject, startingT, sampler, trk, wager, factor)
	result.MeasuredRates = trk.MeasuredRates()
	return result, err
}
