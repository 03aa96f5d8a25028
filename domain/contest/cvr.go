package contest

import (
	"fmt"

	"gorla/domain/core"
)

// Cvr is a ballot record: either the reported cast vote record or the
// manual (audited) vote record for one card. A phantom record stands for a
// card that is counted in Nc but cannot be found.
type Cvr struct {
	ID      core.BallotID
	Votes   map[core.ContestID][]core.CandidateID
	Phantom bool
}

// NewCvr builds a record with one selection per contest
func NewCvr(id core.BallotID, selections map[core.ContestID]core.CandidateID) Cvr {
	votes := make(map[core.ContestID][]core.CandidateID, len(selections))
	for contestID, cand := range selections {
		if cand == "" {
			votes[contestID] = nil
			continue
		}
		votes[contestID] = []core.CandidateID{cand}
	}
	return Cvr{ID: id, Votes: votes}
}

// NewPhantom builds a phantom record for the given contests
func NewPhantom(id core.BallotID, contests ...core.ContestID) Cvr {
	votes := make(map[core.ContestID][]core.CandidateID, len(contests))
	for _, c := range contests {
		votes[c] = nil
	}
	return Cvr{ID: id, Votes: votes, Phantom: true}
}

// HasContest reports whether the card contains the contest, even with an undervote
func (c Cvr) HasContest(id core.ContestID) bool {
	_, ok := c.Votes[id]
	return ok
}

// VoteFor returns 1 if the record has a selection for cand in the contest
func (c Cvr) VoteFor(contestID core.ContestID, cand core.CandidateID) int {
	for _, v := range c.Votes[contestID] {
		if v == cand {
			return 1
		}
	}
	return 0
}

// NumSelections counts the selections made in a contest
func (c Cvr) NumSelections(contestID core.ContestID) int {
	return len(c.Votes[contestID])
}

// Clone returns a deep copy
func (c Cvr) Clone() Cvr {
	votes := make(map[core.ContestID][]core.CandidateID, len(c.Votes))
	for k, v := range c.Votes {
		votes[k] = append([]core.CandidateID(nil), v...)
	}
	return Cvr{ID: c.ID, Votes: votes, Phantom: c.Phantom}
}

func (c Cvr) String() string {
	if c.Phantom {
		return fmt.Sprintf("%s (phantom)", c.ID)
	}
	return fmt.Sprintf("%s %v", c.ID, c.Votes)
}

// CvrPair is the audited record and the reported record for the same card
type CvrPair struct {
	Mvr Cvr
	Cvr Cvr
}

// Tabulate counts votes per candidate for every contest in the records.
// Phantom records are skipped.
func Tabulate(cvrs []Cvr) map[core.ContestID]map[core.CandidateID]int {
	tally := make(map[core.ContestID]map[core.CandidateID]int)
	for _, cvr := range cvrs {
		if cvr.Phantom {
			continue
		}
		for contestID, cands := range cvr.Votes {
			if tally[contestID] == nil {
				tally[contestID] = make(map[core.CandidateID]int)
			}
			for _, cand := range cands {
				tally[contestID][cand]++
			}
		}
	}
	return tally
}

// CountCards counts non-phantom records containing each contest
func CountCards(cvrs []Cvr) map[core.ContestID]int {
	counts := make(map[core.ContestID]int)
	for _, cvr := range cvrs {
		if cvr.Phantom {
			continue
		}
		for contestID := range cvr.Votes {
			counts[contestID]++
		}
	}
	return counts
}
