package assort

import (
	"fmt"
	"math"

	"gorla/domain/contest"
	"gorla/domain/core"
)

const bassortTolerance = 1e-9

// ClcaAssorter turns an (audited, reported) pair into a comparison value
// bassort = (1 - overstatement/u) * noerror.
type ClcaAssorter struct {
	contestID core.ContestID
	assorter  Assorter
	hasStyle  bool
	margin    float64
	noerror   float64
}

// NewClcaAssorter builds the comparison assorter. The diluted margin is taken
// from the reported results of the wrapped assorter.
func NewClcaAssorter(c *contest.Contest, assorter Assorter, hasStyle bool) *ClcaAssorter {
	return NewClcaAssorterWithMargin(c.ID, assorter, hasStyle, ReportedMargin(assorter))
}

// NewClcaAssorterWithMargin builds the comparison assorter with an explicit diluted margin
func NewClcaAssorterWithMargin(contestID core.ContestID, assorter Assorter, hasStyle bool, margin float64) *ClcaAssorter {
	noerror := 1 / (2 - margin/assorter.UpperBound())
	return &ClcaAssorter{
		contestID: contestID,
		assorter:  assorter,
		hasStyle:  hasStyle,
		margin:    margin,
		noerror:   noerror,
	}
}

// Noerror is the bassort value when audited and reported records agree
func (a *ClcaAssorter) Noerror() float64 { return a.noerror }

// UpperBound is the largest possible bassort value, a two-vote understatement
func (a *ClcaAssorter) UpperBound() float64 { return 2 * a.noerror }

// Margin is the diluted margin of the wrapped assorter
func (a *ClcaAssorter) Margin() float64 { return a.margin }

// Assorter returns the wrapped polling assorter
func (a *ClcaAssorter) Assorter() Assorter { return a.assorter }

// HasStyle reports whether card style data is trusted
func (a *ClcaAssorter) HasStyle() bool { return a.hasStyle }

// Overstatement returns A(cvr) - A(mvr). A phantom cvr counts as 1/2, a phantom
// or (with style) contest-less mvr counts as 0. With style, a reported record
// without the contest cannot have been sampled for it and is an error.
func (a *ClcaAssorter) Overstatement(mvr, cvr contest.Cvr) (float64, error) {
	if a.hasStyle && !cvr.Phantom && !cvr.HasContest(a.contestID) {
		return 0, core.NewMissingContestError(cvr.ID, a.contestID)
	}

	var mvrAssort float64
	switch {
	case mvr.Phantom:
		mvrAssort = 0
	case a.hasStyle && !mvr.HasContest(a.contestID):
		mvrAssort = 0
	default:
		mvrAssort = a.assorter.Assort(mvr, false)
	}

	cvrAssort := 0.5
	if !cvr.Phantom {
		cvrAssort = a.assorter.Assort(cvr, false)
	}
	return cvrAssort - mvrAssort, nil
}

// Bassort returns the comparison assort value for one card
func (a *ClcaAssorter) Bassort(mvr, cvr contest.Cvr) (float64, error) {
	overstatement, err := a.Overstatement(mvr, cvr)
	if err != nil {
		return 0, err
	}
	value := (1 - overstatement/a.assorter.UpperBound()) * a.noerror
	if a.assorter.UpperBound() == 1 && !OnBassortGrid(value, a.noerror) {
		return 0, fmt.Errorf("bassort %v for card %s is off the {0,1/2,1,3/2,2}*%v grid", value, cvr.ID, a.noerror)
	}
	return value, nil
}

// OnBassortGrid reports whether value is k/2 * noerror for k in 0..4
func OnBassortGrid(value, noerror float64) bool {
	ratio := value / noerror
	for k := 0; k <= 4; k++ {
		if math.Abs(ratio-float64(k)/2) < bassortTolerance {
			return true
		}
	}
	return false
}

func (a *ClcaAssorter) Desc() string {
	return fmt.Sprintf("clca(%s) margin=%.5f noerror=%.5f", a.assorter.Desc(), a.margin, a.noerror)
}
