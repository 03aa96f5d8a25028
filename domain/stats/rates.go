package stats

import (
	"fmt"
	"math"
	"sort"
)

// DiscrepancyRates are the rates of the four kinds of comparison errors,
// as fractions of sampled ballots.
type DiscrepancyRates struct {
	P2o float64 `json:"p2o" yaml:"p2o"` // two-vote overstatement
	P1o float64 `json:"p1o" yaml:"p1o"` // one-vote overstatement
	P1u float64 `json:"p1u" yaml:"p1u"` // one-vote understatement
	P2u float64 `json:"p2u" yaml:"p2u"` // two-vote understatement
}

// ZeroRates is the no-error rate vector
var ZeroRates = DiscrepancyRates{}

// P0 is the rate of ballots with no discrepancy
func (r DiscrepancyRates) P0() float64 {
	return 1 - r.P2o - r.P1o - r.P1u - r.P2u
}

// IsZero reports whether all rates are zero
func (r DiscrepancyRates) IsZero() bool {
	return r == ZeroRates
}

// Validate checks that every rate is a probability and the rates sum to at most 1
func (r DiscrepancyRates) Validate() error {
	for name, v := range map[string]float64{"p2o": r.P2o, "p1o": r.P1o, "p1u": r.P1u, "p2u": r.P2u} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("rate %s=%v must be in [0, 1]", name, v)
		}
	}
	if r.P0() < -1e-12 {
		return fmt.Errorf("rates sum to %v, more than 1", 1-r.P0())
	}
	return nil
}

// Scale multiplies every rate by factor
func (r DiscrepancyRates) Scale(factor float64) DiscrepancyRates {
	return DiscrepancyRates{
		P2o: r.P2o * factor,
		P1o: r.P1o * factor,
		P1u: r.P1u * factor,
		P2u: r.P2u * factor,
	}
}

// FloorP1o returns rates with the one-vote overstatement rate raised to at least floor.
// Phantom ballots produce one-vote overstatements, so the measured rate can never be
// below the phantom rate.
func (r DiscrepancyRates) FloorP1o(floor float64) DiscrepancyRates {
	out := r
	out.P1o = math.Max(r.P1o, floor)
	return out
}

// Slice returns the rates in the order p2o, p1o, p1u, p2u
func (r DiscrepancyRates) Slice() []float64 {
	return []float64{r.P2o, r.P1o, r.P1u, r.P2u}
}

func (r DiscrepancyRates) String() string {
	return fmt.Sprintf("[p2o=%.5f p1o=%.5f p1u=%.5f p2u=%.5f]", r.P2o, r.P1o, r.P1u, r.P2u)
}

// ErrorRateTable holds discrepancy rates per unit of fuzz, keyed by number of
// candidates in the contest. Rates for a given fuzz percentage are the row
// scaled by that percentage.
type ErrorRateTable struct {
	Rows map[int]DiscrepancyRates `json:"rows" yaml:"rows"`
}

// Lookup returns the rates for a contest with ncand candidates at the given fuzz
// fraction. Candidate counts outside the table use the nearest configured row.
func (t ErrorRateTable) Lookup(ncand int, fuzzPct float64) (DiscrepancyRates, error) {
	if len(t.Rows) == 0 {
		return ZeroRates, fmt.Errorf("error rate table is empty")
	}
	if row, ok := t.Rows[ncand]; ok {
		return row.Scale(fuzzPct), nil
	}
	keys := make([]int, 0, len(t.Rows))
	for k := range t.Rows {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	nearest := keys[0]
	for _, k := range keys {
		if abs(k-ncand) < abs(nearest-ncand) {
			nearest = k
		}
	}
	return t.Rows[nearest].Scale(fuzzPct), nil
}

// Validate checks every row
func (t ErrorRateTable) Validate() error {
	if len(t.Rows) == 0 {
		return fmt.Errorf("error rate table has no rows")
	}
	for ncand, row := range t.Rows {
		if ncand < 2 {
			return fmt.Errorf("error rate table row for %d candidates: need at least 2", ncand)
		}
		if err := row.Validate(); err != nil {
			return fmt.Errorf("error rate table row for %d candidates: %w", ncand, err)
		}
	}
	return nil
}

// DefaultErrorRateTable builds rates per unit fuzz for 2..10 candidates under the
// uniform fuzz model: each fuzzed ballot moves its vote to one of the other k
// choices (k-1 candidates plus undervote) uniformly, and candidates have equal shares.
func DefaultErrorRateTable() ErrorRateTable {
	rows := make(map[int]DiscrepancyRates, 9)
	for ncand := 2; ncand <= 10; ncand++ {
		k := float64(ncand)
		two := 1 / (k * k)
		one := (2*k - 3) / (k * k)
		rows[ncand] = DiscrepancyRates{P2o: two, P1o: one, P1u: one, P2u: two}
	}
	return ErrorRateTable{Rows: rows}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
