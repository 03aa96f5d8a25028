package contest

import (
	"fmt"
	"sort"

	"gorla/domain/core"
)

// Choice is the decision rule of a contest
type Choice int

const (
	ChoicePlurality Choice = iota
	ChoiceSuperMajority
)

func (c Choice) String() string {
	switch c {
	case ChoicePlurality:
		return "Plurality"
	case ChoiceSuperMajority:
		return "SuperMajority"
	default:
		return fmt.Sprintf("Choice(%d)", int(c))
	}
}

// Contest is a tabulated contest. It is immutable once built by New.
type Contest struct {
	ID          core.ContestID
	Name        string
	Choice      Choice
	NWinners    int
	MinFraction float64 // super-majority threshold f, 0 for plurality
	Candidates  []core.CandidateID
	Votes       map[core.CandidateID]int
	Winners     []core.CandidateID
	Losers      []core.CandidateID
	Nc          int // upper bound on ballots containing this contest
	Np          int // phantom ballots
	Ncast       int // ballots cast containing this contest
}

// Params are the reported results a Contest is built from
type Params struct {
	ID          core.ContestID
	Name        string
	Choice      Choice
	NWinners    int
	MinFraction float64
	Candidates  []core.CandidateID
	Votes       map[core.CandidateID]int
	Winners     []core.CandidateID
	Nc          int
	Ncast       int
}

// New builds a contest from reported results. Losers are every candidate that is
// not a reported winner. When Nc exceeds the cast count the difference is phantoms.
func New(p Params) *Contest {
	votes := make(map[core.CandidateID]int, len(p.Votes))
	for cand, n := range p.Votes {
		votes[cand] = n
	}
	candidates := append([]core.CandidateID(nil), p.Candidates...)
	if len(candidates) == 0 {
		for cand := range votes {
			candidates = append(candidates, cand)
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	}

	winners := append([]core.CandidateID(nil), p.Winners...)
	winnerSet := make(map[core.CandidateID]bool, len(winners))
	for _, w := range winners {
		winnerSet[w] = true
	}
	var losers []core.CandidateID
	for _, cand := range candidates {
		if !winnerSet[cand] {
			losers = append(losers, cand)
		}
	}

	nwinners := p.NWinners
	if nwinners == 0 {
		nwinners = len(winners)
	}
	name := p.Name
	if name == "" {
		name = string(p.ID)
	}
	np := p.Nc - p.Ncast
	if np < 0 {
		np = 0
	}

	return &Contest{
		ID:          p.ID,
		Name:        name,
		Choice:      p.Choice,
		NWinners:    nwinners,
		MinFraction: p.MinFraction,
		Candidates:  candidates,
		Votes:       votes,
		Winners:     winners,
		Losers:      losers,
		Nc:          p.Nc,
		Np:          np,
		Ncast:       p.Ncast,
	}
}

// NumCandidates is the number of candidates on the ballot
func (c *Contest) NumCandidates() int { return len(c.Candidates) }

// PhantomRate is the fraction of the upper bound that is phantom ballots
func (c *Contest) PhantomRate() float64 {
	if c.Nc == 0 {
		return 0
	}
	return float64(c.Np) / float64(c.Nc)
}

// TotalVotes is the sum of all candidate votes
func (c *Contest) TotalVotes() int {
	total := 0
	for _, n := range c.Votes {
		total += n
	}
	return total
}

// IsWinner reports whether cand is a reported winner
func (c *Contest) IsWinner(cand core.CandidateID) bool {
	for _, w := range c.Winners {
		if w == cand {
			return true
		}
	}
	return false
}

// MinWinnerMargin is the smallest vote difference between any winner and any loser.
func (c *Contest) MinWinnerMargin() int {
	minMargin := -1
	for _, w := range c.Winners {
		for _, l := range c.Losers {
			m := c.Votes[w] - c.Votes[l]
			if minMargin < 0 || m < minMargin {
				minMargin = m
			}
		}
	}
	if minMargin < 0 {
		return 0
	}
	return minMargin
}

func (c *Contest) String() string {
	return fmt.Sprintf("%s (%s) Nc=%d Np=%d winners=%v votes=%v", c.Name, c.ID, c.Nc, c.Np, c.Winners, c.Votes)
}
