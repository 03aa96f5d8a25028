package assort

import (
	"fmt"

	"gorla/domain/contest"
)

// Assertion is a claim about a contest backed by an assorter. Clca is set for
// comparison audits and nil for polling audits.
type Assertion struct {
	Contest  *contest.Contest
	Assorter Assorter
	Clca     *ClcaAssorter
}

// ID is a stable name for the assertion within an audit
func (a Assertion) ID() string {
	if a.Assorter.Loser() == "" {
		return fmt.Sprintf("%s/%s", a.Contest.ID, a.Assorter.Winner())
	}
	return fmt.Sprintf("%s/%s>%s", a.Contest.ID, a.Assorter.Winner(), a.Assorter.Loser())
}

// IsComparison reports whether the assertion is tested with comparison values
func (a Assertion) IsComparison() bool { return a.Clca != nil }

// UpperBound is the bound on the values fed to the risk test
func (a Assertion) UpperBound() float64 {
	if a.Clca != nil {
		return a.Clca.UpperBound()
	}
	return a.Assorter.UpperBound()
}

// Noerror is the comparison no-error value, or 0 for a polling assertion
func (a Assertion) Noerror() float64 {
	if a.Clca != nil {
		return a.Clca.Noerror()
	}
	return 0
}

// Margin is the reported diluted margin
func (a Assertion) Margin() float64 { return ReportedMargin(a.Assorter) }

// Value maps a card to the value tested for this assertion
func (a Assertion) Value(pair contest.CvrPair) (float64, error) {
	if a.Clca != nil {
		return a.Clca.Bassort(pair.Mvr, pair.Cvr)
	}
	return a.Assorter.Assort(pair.Mvr, true), nil
}

func (a Assertion) String() string {
	if a.Clca != nil {
		return a.Clca.Desc()
	}
	return a.Assorter.Desc()
}

// MakeAssertions builds every assertion a contest needs: one per winner/loser pair
// for plurality contests and one per winner for super-majority contests. When
// comparison is true each assertion carries a comparison assorter.
func MakeAssertions(c *contest.Contest, comparison, hasStyle bool) []Assertion {
	var assorters []Assorter
	switch c.Choice {
	case contest.ChoiceSuperMajority:
		for _, w := range c.Winners {
			assorters = append(assorters, NewSuperMajorityAssorter(c, w, c.MinFraction))
		}
	default:
		for _, w := range c.Winners {
			for _, l := range c.Losers {
				assorters = append(assorters, NewPluralityAssorter(c, w, l))
			}
		}
	}

	assertions := make([]Assertion, 0, len(assorters))
	for _, a := range assorters {
		assertion := Assertion{Contest: c, Assorter: a}
		if comparison {
			assertion.Clca = NewClcaAssorter(c, a, hasStyle)
		}
		assertions = append(assertions, assertion)
	}
	return assertions
}

// MinMarginAssertion returns the assertion with the smallest reported margin
func MinMarginAssertion(assertions []Assertion) (Assertion, bool) {
	if len(assertions) == 0 {
		return Assertion{}, false
	}
	best := assertions[0]
	for _, a := range assertions[1:] {
		if a.Margin() < best.Margin() {
			best = a
		}
	}
	return best, true
}
