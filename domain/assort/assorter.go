// Package assort maps ballot records to bounded assort values. An assertion
// "winner beats loser" holds when the population mean of its assorter exceeds 1/2.
package assort

import (
	"fmt"

	"gorla/domain/contest"
	"gorla/domain/core"
)

// Assorter maps one ballot record to a value in [0, UpperBound()]
type Assorter interface {
	Assort(ballot contest.Cvr, usePhantoms bool) float64
	UpperBound() float64
	Winner() core.CandidateID
	Loser() core.CandidateID
	// ReportedMean is the assorter mean over Nc ballots implied by the reported tallies
	ReportedMean() float64
	Desc() string
}

// ReportedMargin is the diluted margin 2*mean - 1
func ReportedMargin(a Assorter) float64 {
	return MeanToMargin(a.ReportedMean())
}

// MeanToMargin converts an assorter mean to a diluted margin
func MeanToMargin(mean float64) float64 { return 2*mean - 1 }

// MarginToMean converts a diluted margin to an assorter mean
func MarginToMean(margin float64) float64 { return (margin + 1) / 2 }

// PluralityAssorter is the assorter for "winner has more votes than loser"
type PluralityAssorter struct {
	contest *contest.Contest
	winner  core.CandidateID
	loser   core.CandidateID
	mean    float64
}

// NewPluralityAssorter builds the assorter for one winner/loser pair
func NewPluralityAssorter(c *contest.Contest, winner, loser core.CandidateID) *PluralityAssorter {
	mean := 0.5
	if c.Nc > 0 {
		mean = float64(c.Votes[winner]-c.Votes[loser])/(2*float64(c.Nc)) + 0.5
	}
	return &PluralityAssorter{contest: c, winner: winner, loser: loser, mean: mean}
}

// Assort returns 1 for a vote for the winner, 0 for the loser and 1/2 otherwise.
// With usePhantoms a phantom ballot is counted as a vote for the loser.
func (a *PluralityAssorter) Assort(ballot contest.Cvr, usePhantoms bool) float64 {
	if usePhantoms && ballot.Phantom {
		return 0
	}
	w := ballot.VoteFor(a.contest.ID, a.winner)
	l := ballot.VoteFor(a.contest.ID, a.loser)
	return float64(w-l+1) / 2
}

func (a *PluralityAssorter) UpperBound() float64      { return 1 }
func (a *PluralityAssorter) Winner() core.CandidateID { return a.winner }
func (a *PluralityAssorter) Loser() core.CandidateID  { return a.loser }
func (a *PluralityAssorter) ReportedMean() float64    { return a.mean }

func (a *PluralityAssorter) Desc() string {
	return fmt.Sprintf("%s: %s > %s", a.contest.ID, a.winner, a.loser)
}

// SuperMajorityAssorter is the assorter for "winner has more than a fraction f of the votes"
type SuperMajorityAssorter struct {
	contest *contest.Contest
	winner  core.CandidateID
	f       float64
	upper   float64
	mean    float64
}

// NewSuperMajorityAssorter builds the assorter for one winner of a threshold contest
func NewSuperMajorityAssorter(c *contest.Contest, winner core.CandidateID, f float64) *SuperMajorityAssorter {
	upper := 1 / (2 * f)
	mean := 0.5
	if c.Nc > 0 {
		neutral := float64(c.Nc-c.TotalVotes()) * 0.5
		mean = (float64(c.Votes[winner])*upper + neutral) / float64(c.Nc)
	}
	return &SuperMajorityAssorter{contest: c, winner: winner, f: f, upper: upper, mean: mean}
}

// Assort returns 1/(2f) for a single vote for the winner, 0 for a single vote for
// anyone else, and 1/2 for undervotes, overvotes and ballots without the contest.
func (a *SuperMajorityAssorter) Assort(ballot contest.Cvr, usePhantoms bool) float64 {
	if usePhantoms && ballot.Phantom {
		return 0
	}
	if ballot.NumSelections(a.contest.ID) != 1 {
		return 0.5
	}
	if ballot.VoteFor(a.contest.ID, a.winner) == 1 {
		return a.upper
	}
	return 0
}

func (a *SuperMajorityAssorter) UpperBound() float64      { return a.upper }
func (a *SuperMajorityAssorter) Winner() core.CandidateID { return a.winner }
func (a *SuperMajorityAssorter) Loser() core.CandidateID  { return "" }
func (a *SuperMajorityAssorter) ReportedMean() float64    { return a.mean }

// MinFraction is the threshold f
func (a *SuperMajorityAssorter) MinFraction() float64 { return a.f }

func (a *SuperMajorityAssorter) Desc() string {
	return fmt.Sprintf("%s: %s > %.4f", a.contest.ID, a.winner, a.f)
}
