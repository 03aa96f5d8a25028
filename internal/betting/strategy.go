// Package betting chooses the wager λ for each step of a betting supermartingale.
package betting

import (
	"fmt"
	"math"

	"gorla/domain/core"
	"gorla/domain/stats"
	"gorla/internal/tracker"
)

// Kind selects a betting strategy
type Kind int

const (
	// KindOracle bets with the true discrepancy rates of the sample. Simulation only.
	KindOracle Kind = iota
	// KindNoError bets as if there are no discrepancies.
	KindNoError
	// KindApriori bets with configured prior rates.
	KindApriori
	// KindFuzzTable bets with rates looked up from an error rate table.
	KindFuzzTable
	// KindAdaptive bets with the rates measured in the previous round.
	KindAdaptive
	// KindOptimalNoP1 uses the closed form for two-vote overstatements only.
	KindOptimalNoP1
	// KindGeneralAdaptive re-estimates the rates at every step from the samples seen.
	KindGeneralAdaptive
)

var kindNames = map[Kind]string{
	KindOracle:          "oracle",
	KindNoError:         "noerror",
	KindApriori:         "apriori",
	KindFuzzTable:       "fuzztable",
	KindAdaptive:        "adaptive",
	KindOptimalNoP1:     "optimalnop1",
	KindGeneralAdaptive: "generaladaptive",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a configuration name to a Kind
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindNoError, fmt.Errorf("unknown betting strategy %q", name)
}

// DefaultMaxRisk bounds λμ, the fraction of wealth lost on a two-vote overstatement
const DefaultMaxRisk = 0.90

// minRate is the floor for estimated overstatement rates in adaptive strategies
const minRate = 1e-5

// Strategy is a betting strategy and its parameters. Which fields are read
// depends on Kind; Validate checks the ones the kind needs.
type Strategy struct {
	Kind    Kind
	MaxRisk float64

	// Rates are the true rates (oracle), configured rates (apriori),
	// measured rates (adaptive) or the starting prior (general adaptive).
	Rates *stats.DiscrepancyRates

	// FuzzTable parameters
	Table         *stats.ErrorRateTable
	NumCandidates int
	FuzzPct       float64

	// P2 is the assumed two-vote overstatement rate for KindOptimalNoP1
	P2 float64

	// D is the weight of the prior rates against the observed counts. Zero keeps
	// the prior fixed for apriori, fuzztable and adaptive.
	D int

	// PhantomRate floors the one-vote overstatement rate
	PhantomRate float64
}

// BetState is what a strategy sees before the next draw
type BetState struct {
	Mu      float64
	Noerror float64
	Upper   float64
	Errors  tracker.ErrorCounter
}

// Validate rejects configurations that cannot produce a bet
func (s Strategy) Validate() error {
	if s.MaxRisk <= 0 || s.MaxRisk >= 1 {
		return core.NewConfigError("betting.max_risk", fmt.Sprintf("%v must be in (0, 1)", s.MaxRisk))
	}
	if s.D < 0 {
		return core.NewConfigError("betting.d", "prior weight must be non-negative")
	}
	if s.PhantomRate < 0 || s.PhantomRate >= 1 {
		return core.NewConfigError("betting.phantom_rate", "must be in [0, 1)")
	}
	switch s.Kind {
	case KindOracle, KindApriori, KindAdaptive:
		if s.Rates == nil {
			return core.NewConfigError("betting.rates", s.Kind.String()+" strategy requires rates")
		}
		return validateRates(*s.Rates)
	case KindGeneralAdaptive:
		if s.Rates != nil {
			return validateRates(*s.Rates)
		}
		return nil
	case KindFuzzTable:
		if s.Table == nil {
			return core.NewConfigError("betting.table", "fuzztable strategy requires an error rate table")
		}
		if s.NumCandidates < 2 {
			return core.NewConfigError("betting.num_candidates", "need at least 2 candidates")
		}
		if s.FuzzPct < 0 || s.FuzzPct > 1 {
			return core.NewConfigError("betting.fuzz_pct", "must be in [0, 1]")
		}
		if err := s.Table.Validate(); err != nil {
			return core.NewConfigError("betting.table", err.Error())
		}
		return nil
	case KindOptimalNoP1:
		if s.P2 < 0 || s.P2 >= 1 {
			return core.NewConfigError("betting.p2", "must be in [0, 1)")
		}
		return nil
	case KindNoError:
		return nil
	default:
		return core.NewConfigError("betting.kind", fmt.Sprintf("unsupported strategy %d", int(s.Kind)))
	}
}

func validateRates(r stats.DiscrepancyRates) error {
	if err := r.Validate(); err != nil {
		return core.NewConfigError("betting.rates", err.Error())
	}
	return nil
}

// PriorRates are the rates the strategy starts from, before any samples
func (s Strategy) PriorRates() stats.DiscrepancyRates {
	var rates stats.DiscrepancyRates
	switch s.Kind {
	case KindOracle, KindApriori, KindAdaptive, KindGeneralAdaptive:
		if s.Rates != nil {
			rates = *s.Rates
		}
	case KindFuzzTable:
		if s.Table != nil {
			rates, _ = s.Table.Lookup(s.NumCandidates, s.FuzzPct)
		}
	case KindOptimalNoP1:
		rates = stats.DiscrepancyRates{P2o: s.P2}
	case KindNoError:
		rates = stats.ZeroRates
	}
	if s.Kind != KindOracle && s.Kind != KindNoError && s.Kind != KindOptimalNoP1 {
		rates = rates.FloorP1o(s.PhantomRate)
	}
	return rates
}

// Bet returns λ for the next draw, clamped into [0, MaxRisk/μ] so that
// 1 + λ(x − μ) stays positive for every x in [0, Upper].
func (s Strategy) Bet(state BetState) float64 {
	mu := state.Mu
	if mu <= 0 || mu >= state.Upper {
		return 0
	}

	var lam float64
	switch s.Kind {
	case KindOracle, KindNoError:
		lam = OptimalLambda{Noerror: state.Noerror, Rates: s.PriorRates(), Mu: mu}.Solve()
	case KindApriori, KindFuzzTable, KindAdaptive:
		rates := s.PriorRates()
		if s.D > 0 {
			rates = s.updatedRates(rates, state.Errors)
		}
		lam = OptimalLambda{Noerror: state.Noerror, Rates: rates, Mu: mu}.Solve()
	case KindGeneralAdaptive:
		rates := s.updatedRates(s.PriorRates(), state.Errors)
		lam = OptimalLambda{Noerror: state.Noerror, Rates: rates, Mu: mu}.Solve()
	case KindOptimalNoP1:
		lam = OptimalComparisonNoP1(state.Noerror, s.P2, mu)
	default:
		lam = 0
	}
	return ClampBet(lam, mu, s.MaxRisk)
}

// updatedRates blends the prior with the observed error counts,
// p̂ = (d·prior + count)/(d + n), and floors the overstatement rates.
func (s Strategy) updatedRates(prior stats.DiscrepancyRates, errs tracker.ErrorCounter) stats.DiscrepancyRates {
	n := 0
	var counts [4]int
	if errs != nil {
		n = errs.NumberOfSamples()
		counts = errs.ErrorCounts()
	}
	d := float64(s.D)
	denom := d + float64(n)
	if denom == 0 {
		return prior.FloorP1o(s.PhantomRate)
	}
	est := func(p float64, count int) float64 {
		return (d*p + float64(count)) / denom
	}
	rates := stats.DiscrepancyRates{
		P2o: math.Max(minRate, est(prior.P2o, counts[0])),
		P1o: math.Max(minRate, est(prior.P1o, counts[1])),
		P1u: est(prior.P1u, counts[2]),
		P2u: est(prior.P2u, counts[3]),
	}
	return rates.FloorP1o(s.PhantomRate)
}

// ClampBet keeps λ inside [0, maxRisk/μ]
func ClampBet(lam, mu, maxRisk float64) float64 {
	if math.IsNaN(lam) || lam < 0 {
		return 0
	}
	if mu <= 0 {
		return 0
	}
	limit := maxRisk / mu
	if lam > limit {
		return limit
	}
	return lam
}

func (s Strategy) String() string {
	switch s.Kind {
	case KindFuzzTable:
		return fmt.Sprintf("%s(fuzz=%.4f, ncand=%d)", s.Kind, s.FuzzPct, s.NumCandidates)
	case KindOptimalNoP1:
		return fmt.Sprintf("%s(p2=%.5f)", s.Kind, s.P2)
	case KindOracle, KindApriori, KindAdaptive, KindGeneralAdaptive:
		if s.Rates != nil {
			return fmt.Sprintf("%s%s", s.Kind, s.Rates)
		}
	}
	return s.Kind.String()
}
