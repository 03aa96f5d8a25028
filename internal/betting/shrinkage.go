package betting

import (
	"math"

	"gorla/domain/core"
)

// EtaEstimator proposes the alternative mean η for the next AlphaMart step
type EtaEstimator interface {
	Eta(prev SampleSummary, mu float64) float64
}

// SampleSummary is the slice of a tracker an EtaEstimator reads
type SampleSummary interface {
	NumberOfSamples() int
	Sum() float64
	Variance() float64
}

// TruncShrinkage shrinks the running mean towards a prior η0 with weight D and
// truncates it so that η stays above μ by c/√(d+j−1) and below the upper bound.
type TruncShrinkage struct {
	Upper float64
	Eta0  float64
	D     int
	C     float64
	F     float64 // weight towards the upper bound, scaled by 1/sd; 0 disables
	MinSD float64
}

// NewTruncShrinkage uses the conventional defaults d=100, c=(η0−½)/2
func NewTruncShrinkage(upper, eta0 float64) TruncShrinkage {
	return TruncShrinkage{
		Upper: upper,
		Eta0:  eta0,
		D:     100,
		C:     math.Max(eta0-0.5, 0) / 2,
		MinSD: 1e-6,
	}
}

// Validate checks the estimator parameters
func (e TruncShrinkage) Validate() error {
	if e.Upper <= 0 {
		return core.NewConfigError("alpha.upper", "must be positive")
	}
	if e.Eta0 <= 0 || e.Eta0 > e.Upper {
		return core.NewConfigError("alpha.eta0", "must be in (0, upper]")
	}
	if e.D < 0 || e.C < 0 || e.F < 0 {
		return core.NewConfigError("alpha", "d, c and f must be non-negative")
	}
	return nil
}

// Eta returns η_j from the samples seen before draw j
func (e TruncShrinkage) Eta(prev SampleSummary, mu float64) float64 {
	j := prev.NumberOfSamples() + 1
	dj := float64(e.D + j - 1)
	if dj <= 0 {
		dj = 1
	}
	est := (float64(e.D)*e.Eta0 + prev.Sum()) / dj
	if e.F > 0 {
		sd := 1.0
		if j > 2 {
			sd = math.Max(math.Sqrt(prev.Variance()), e.MinSD)
		}
		est = (est + e.Upper*e.F/sd) / (1 + e.F/sd)
	}
	est = math.Max(est, mu+e.C/math.Sqrt(dj))
	return math.Min(est, e.Upper*(1-epsilon))
}

const epsilon = 2.220446049250313e-16

// AlphaTerm is the AlphaMart multiplier for value x given η and μ:
// (x·η/μ + (u−x)(u−η)/(u−μ))/u.
func AlphaTerm(x, eta, mu, upper float64) float64 {
	return (x*eta/mu + (upper-x)*(upper-eta)/(upper-mu)) / upper
}
