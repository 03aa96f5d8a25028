package betting

import (
	"math"

	"gorla/domain/stats"
)

const (
	bisectionTolerance = 1e-12
	bisectionMaxIter   = 200
	boundaryShrink     = 1e-9
)

// OptimalLambda finds the Kelly bet for a comparison audit: the λ maximising
// E[log(1 + λ(X − μ))] when X takes the values {0, a/2, a, 3a/2, 2a} with
// probabilities {p2o, p1o, p0, p1u, p2u}.
type OptimalLambda struct {
	Noerror float64
	Rates   stats.DiscrepancyRates
	Mu      float64 // null mean; 0 means 1/2
}

func (o OptimalLambda) mu() float64 {
	if o.Mu <= 0 {
		return 0.5
	}
	return o.Mu
}

func (o OptimalLambda) outcomes() (values, probs [5]float64) {
	a := o.Noerror
	values = [5]float64{0, a / 2, a, 1.5 * a, 2 * a}
	probs = [5]float64{o.Rates.P2o, o.Rates.P1o, o.Rates.P0(), o.Rates.P1u, o.Rates.P2u}
	return values, probs
}

// ExpectedLogGrowth is E[log(1 + λ(X − μ))]
func (o OptimalLambda) ExpectedLogGrowth(lam float64) float64 {
	mu := o.mu()
	values, probs := o.outcomes()
	total := 0.0
	for i, x := range values {
		if probs[i] == 0 {
			continue
		}
		total += probs[i] * math.Log(1+lam*(x-mu))
	}
	return total
}

func (o OptimalLambda) derivative(lam float64) float64 {
	mu := o.mu()
	values, probs := o.outcomes()
	total := 0.0
	for i, x := range values {
		if probs[i] == 0 {
			continue
		}
		total += probs[i] * (x - mu) / (1 + lam*(x-mu))
	}
	return total
}

// Solve returns the maximiser on [0, 1/μ) by bisection on the derivative of the
// (concave) expected log growth. When growth still increases at the boundary the
// boundary is returned; callers clamp it with their risk limit.
func (o OptimalLambda) Solve() float64 {
	mu := o.mu()
	lo, hi := 0.0, (1/mu)*(1-boundaryShrink)
	if o.derivative(lo) <= 0 {
		return 0
	}
	if o.derivative(hi) >= 0 {
		return hi
	}
	for i := 0; i < bisectionMaxIter && hi-lo > bisectionTolerance; i++ {
		mid := (lo + hi) / 2
		if o.derivative(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// OptimalComparisonNoP1 is the closed-form Kelly bet when the only possible
// discrepancy is a two-vote overstatement with rate p2:
// λ = (1 − p2)/μ − p2/(a − μ).
func OptimalComparisonNoP1(noerror, p2, mu float64) float64 {
	if mu <= 0 {
		mu = 0.5
	}
	if noerror <= mu {
		return 0
	}
	lam := (1-p2)/mu - p2/(noerror-mu)
	return math.Max(0, lam)
}
