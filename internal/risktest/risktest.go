// Package risktest runs sequential supermartingale tests of the null hypothesis
// that an assertion's population mean is at most one half.
package risktest

import (
	"context"
	"fmt"
	"math"

	"gorla/domain/core"
	"gorla/domain/stats"
	"gorla/internal/tracker"
)

// NullMean is the population mean of an assorter when the reported outcome is a tie
const NullMean = 0.5

// ctxCheckInterval is how many draws pass between context checks
const ctxCheckInterval = 256

// Sampler yields assort values in sample order
type Sampler interface {
	Sample() (float64, error)
	MaxSamples() int
	MaxSampleIndexUsed() int
}

// RiskTest decides whether a stream of assort values rejects the null
type RiskTest interface {
	TestH0(ctx context.Context, maxSamples int, terminateOnNullReject bool, startingT float64, sampler Sampler) (stats.TestH0Result, error)
}

// Options are shared by both test families
type Options struct {
	RiskLimit          float64
	N                  int // population size for the without-replacement correction
	WithoutReplacement bool
	Upper              float64
	// PopulationLimit marks maxSamples as the whole population, so running out of
	// samples without rejecting is LimitReached rather than InProgress.
	PopulationLimit bool
	Sequence        *Sequence
}

// Validate checks the options before any sample is drawn
func (o Options) Validate() error {
	if o.RiskLimit <= 0 || o.RiskLimit >= 1 {
		return core.NewConfigError("risk_limit", fmt.Sprintf("%v must be in (0, 1)", o.RiskLimit))
	}
	if o.Upper <= 0 {
		return core.NewConfigError("upper", "upper bound must be positive")
	}
	if o.WithoutReplacement && o.N <= 0 {
		return core.NewConfigError("n", "population size required without replacement")
	}
	return nil
}

// PopulationMeanIfH0 is the mean of the not-yet-drawn population under the null,
// μ_j = (N·t − S_{j−1})/(N − j + 1). With replacement it is t.
func PopulationMeanIfH0(n int, withoutReplacement bool, t, sumPrev float64, j int) float64 {
	if !withoutReplacement || n <= 0 {
		return t
	}
	remaining := n - j + 1
	if remaining <= 0 {
		return 0
	}
	return (float64(n)*t - sumPrev) / float64(remaining)
}

// PValue is min(1, 1/T)
func PValue(t float64) float64 {
	if t <= 1 {
		return 1
	}
	return 1 / t
}

type wagerFunc func(mu float64) float64
type factorFunc func(x, mu, wager float64) float64

// run drives T_j = T_{j−1}·τ_j. The wager is fixed before x_j is drawn.
func (o Options) run(
	ctx context.Context,
	maxSamples int,
	terminateOnNullReject bool,
	startingT float64,
	sampler Sampler,
	rec tracker.Recorder,
	wager wagerFunc,
	factor factorFunc,
) (stats.TestH0Result, error) {
	if err := o.Validate(); err != nil {
		return stats.TestH0Result{}, err
	}
	if startingT <= 0 {
		startingT = 1
	}

	tstat := startingT
	pvalue := PValue(tstat)
	result := stats.TestH0Result{
		Status:     stats.StatusInProgress,
		PValueMin:  pvalue,
		PValueLast: pvalue,
		TStatLast:  tstat,
	}

	j := 0
	for j < maxSamples {
		if j%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return o.finish(result, j, rec, sampler), err
			}
		}
		j++

		mu := PopulationMeanIfH0(o.N, o.WithoutReplacement, NullMean, rec.Sum(), j)
		neutral := mu <= 0 || mu >= o.Upper
		w := 0.0
		if !neutral {
			w = wager(mu)
		}

		x, err := sampler.Sample()
		if err != nil {
			return o.finish(result, j-1, rec, sampler), fmt.Errorf("draw %d: %w", j, err)
		}

		tau := 1.0
		if !neutral {
			tau = math.Max(0, factor(x, mu, w))
		}
		tstat *= tau
		rec.AddSample(x)

		pvalue = PValue(tstat)
		result.PValueLast = pvalue
		result.TStatLast = tstat
		if pvalue < result.PValueMin {
			result.PValueMin = pvalue
		}
		if pvalue < o.RiskLimit && result.SampleFirstUnderLimit == 0 {
			result.SampleFirstUnderLimit = j
		}
		o.Sequence.record(Step{J: j, X: x, Mu: mu, Wager: w, Tau: tau, T: tstat, PValue: pvalue})

		if result.SampleFirstUnderLimit > 0 && terminateOnNullReject {
			break
		}
	}

	result = o.finish(result, j, rec, sampler)
	switch {
	case result.SampleFirstUnderLimit > 0:
		result.Status = stats.StatusStatRejectNull
	case o.PopulationLimit:
		result.Status = stats.StatusLimitReached
	default:
		result.Status = stats.StatusInProgress
	}
	return result, nil
}

func (o Options) finish(result stats.TestH0Result, count int, rec tracker.Recorder, sampler Sampler) stats.TestH0Result {
	result.SampleCount = count
	result.SampleMean = rec.Mean()
	result.MaxSampleIndexUsed = sampler.MaxSampleIndexUsed()
	return result
}
