package risktest

import (
	"context"

	"gorla/domain/core"
	"gorla/domain/stats"
	"gorla/internal/betting"
	"gorla/internal/tracker"
)

// AlphaMart is the ALPHA supermartingale, used for polling audits:
// τ_j = (x_j·η_j/μ_j + (u−x_j)(u−η_j)/(u−μ_j))/u.
type AlphaMart struct {
	Options
	Estimator betting.EtaEstimator
}

// NewAlphaMart returns an AlphaMart with the given η estimator
func NewAlphaMart(opts Options, estimator betting.EtaEstimator) (*AlphaMart, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if estimator == nil {
		return nil, core.NewConfigError("alpha.estimator", "required")
	}
	if v, ok := estimator.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return &AlphaMart{Options: opts, Estimator: estimator}, nil
}

// TestH0 consumes up to maxSamples values and reports the result
func (a *AlphaMart) TestH0(ctx context.Context, maxSamples int, terminateOnNullReject bool, startingT float64, sampler Sampler) (stats.TestH0Result, error) {
	trk := tracker.NewSampleTracker()
	wager := func(mu float64) float64 {
		return a.Estimator.Eta(trk, mu)
	}
	factor := func(x, mu, eta float64) float64 {
		return betting.AlphaTerm(x, eta, mu, a.Upper)
	}
	return a.run(ctx, maxSamples, terminateOnNullReject, startingT, sampler, trk, wager, factor)
}
