package contest

import (
	"gorla/domain/core"
	"gorla/domain/stats"
)

// Validate checks the reported results for internal consistency. Misformed
// contests return an error wrapping core.ErrContestMisformed.
func (c *Contest) Validate() error {
	if c.ID.String() == "" {
		return core.NewMisformedError(c.ID, "empty contest id")
	}
	if len(c.Winners) == 0 {
		return core.NewMisformedError(c.ID, "no reported winners")
	}
	if len(c.Winners) != c.NWinners {
		return core.NewMisformedError(c.ID, "number of reported winners differs from seats")
	}
	if len(c.Losers) == 0 {
		return core.NewMisformedError(c.ID, "no losing candidates")
	}

	known := make(map[core.CandidateID]bool, len(c.Candidates))
	for _, cand := range c.Candidates {
		if known[cand] {
			return core.NewMisformedError(c.ID, "duplicate candidate "+cand.String())
		}
		known[cand] = true
	}
	seen := make(map[core.CandidateID]bool, len(c.Winners))
	for _, w := range c.Winners {
		if seen[w] {
			return core.NewMisformedError(c.ID, "duplicate winner "+w.String())
		}
		seen[w] = true
		if !known[w] {
			return core.NewMisformedError(c.ID, "winner "+w.String()+" is not a candidate")
		}
	}
	for cand, n := range c.Votes {
		if !known[cand] {
			return core.NewMisformedError(c.ID, "votes for unknown candidate "+cand.String())
		}
		if n < 0 {
			return core.NewMisformedError(c.ID, "negative votes for "+cand.String())
		}
	}
	for _, w := range c.Winners {
		for _, l := range c.Losers {
			if c.Votes[l] > c.Votes[w] {
				return core.NewMisformedError(c.ID, "loser "+l.String()+" has more votes than winner "+w.String())
			}
		}
	}
	if c.Nc <= 0 {
		return core.NewMisformedError(c.ID, "Nc must be positive")
	}
	if c.TotalVotes() > c.Nc*c.NWinners {
		return core.NewMisformedError(c.ID, "more votes than Nc allows")
	}
	if c.Choice == ChoiceSuperMajority && (c.MinFraction <= 0 || c.MinFraction >= 1) {
		return core.NewMisformedError(c.ID, "super-majority fraction must be in (0, 1)")
	}
	return nil
}

// SetupStatus classifies a contest before any sampling: misformed, tied
// (no margin), or ready for testing.
func (c *Contest) SetupStatus() (stats.Status, error) {
	if err := c.Validate(); err != nil {
		return stats.StatusContestMisformed, err
	}
	if c.Choice == ChoicePlurality && c.MinWinnerMargin() == 0 {
		return stats.StatusMinMargin, nil
	}
	if c.Choice == ChoiceSuperMajority {
		for _, w := range c.Winners {
			if float64(c.Votes[w]) <= c.MinFraction*float64(c.TotalVotes()) {
				return stats.StatusMinMargin, nil
			}
		}
	}
	return stats.StatusInProgress, nil
}
