package testkit

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gorla/domain/contest"
	"gorla/domain/core"
)

// ContestSpec describes one synthetic contest
type ContestSpec struct {
	ID         core.ContestID     `json:"id"`
	Candidates []core.CandidateID `json:"candidates"`
	Shares     []float64          `json:"shares"`   // vote share per candidate among cards with the contest; the rest undervote
	Coverage   float64            `json:"coverage"` // fraction of cards carrying the contest, 0 means all
	Phantoms   int                `json:"phantoms"`
}

// TwoCandidateSpec is a contest where the winner gets cvrMean of the votes
func TwoCandidateSpec(id core.ContestID, cvrMean float64) ContestSpec {
	return ContestSpec{
		ID:         id,
		Candidates: []core.CandidateID{"winner", "loser"},
		Shares:     []float64{cvrMean, 1 - cvrMean},
	}
}

// ElectionGeneratorConfig configures the election generator
type ElectionGeneratorConfig struct {
	NCards   int           `json:"ncards"`
	Contests []ContestSpec `json:"contests"`
	Seed     int64         `json:"seed"`
}

// DefaultElectionConfig is a single two-candidate contest with a 4% margin
func DefaultElectionConfig() ElectionGeneratorConfig {
	return ElectionGeneratorConfig{
		NCards:   10000,
		Contests: []ContestSpec{TwoCandidateSpec("contest0", 0.52)},
		Seed:     42,
	}
}

// Election is the generated manifest and reported results
type Election struct {
	Cvrs     []contest.Cvr
	Contests []*contest.Contest
}

// ElectionGenerator generates synthetic cast vote records
type ElectionGenerator struct {
	config ElectionGeneratorConfig
	rng    *rand.Rand
}

// NewElectionGenerator creates a new election generator
func NewElectionGenerator(config ElectionGeneratorConfig) *ElectionGenerator {
	return &ElectionGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate builds the cards and tabulates the contests from them. Vote counts
// are exact: round(share·cards) per candidate, placed on random cards.
func (g *ElectionGenerator) Generate() (*Election, error) {
	if g.config.NCards <= 0 {
		return nil, fmt.Errorf("ncards must be positive")
	}
	selections := make([]map[core.ContestID]core.CandidateID, g.config.NCards)
	for i := range selections {
		selections[i] = make(map[core.ContestID]core.CandidateID)
	}

	for _, spec := range g.config.Contests {
		if len(spec.Shares) != len(spec.Candidates) {
			return nil, fmt.Errorf("contest %s: %d shares for %d candidates", spec.ID, len(spec.Shares), len(spec.Candidates))
		}
		coverage := spec.Coverage
		if coverage <= 0 || coverage > 1 {
			coverage = 1
		}
		ncards := int(math.Round(coverage * float64(g.config.NCards)))
		cards := g.rng.Perm(g.config.NCards)[:ncards]

		pos := 0
		for k, cand := range spec.Candidates {
			votes := int(math.Round(spec.Shares[k] * float64(ncards)))
			for v := 0; v < votes && pos < ncards; v++ {
				selections[cards[pos]][spec.ID] = cand
				pos++
			}
		}
		for ; pos < ncards; pos++ {
			selections[cards[pos]][spec.ID] = ""
		}
	}

	election := &Election{Cvrs: make([]contest.Cvr, 0, g.config.NCards)}
	for i, sel := range selections {
		election.Cvrs = append(election.Cvrs, contest.NewCvr(core.BallotID(fmt.Sprintf("card-%06d", i)), sel))
	}

	counts := contest.CountCards(election.Cvrs)
	tallies := contest.Tabulate(election.Cvrs)
	for _, spec := range g.config.Contests {
		for p := 0; p < spec.Phantoms; p++ {
			election.Cvrs = append(election.Cvrs, contest.NewPhantom(core.BallotID(fmt.Sprintf("phantom-%s-%04d", spec.ID, p)), spec.ID))
		}
		election.Contests = append(election.Contests, contest.New(contest.Params{
			ID:         spec.ID,
			Candidates: spec.Candidates,
			Votes:      tallies[spec.ID],
			Winners:    []core.CandidateID{topCandidate(spec.Candidates, tallies[spec.ID])},
			Nc:         counts[spec.ID] + spec.Phantoms,
			Ncast:      counts[spec.ID],
		}))
	}
	return election, nil
}

func topCandidate(candidates []core.CandidateID, votes map[core.CandidateID]int) core.CandidateID {
	sorted := append([]core.CandidateID(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return votes[sorted[i]] > votes[sorted[j]] })
	return sorted[0]
}

// Fuzz returns audited records for cvrs where each contest selection is changed,
// with probability fuzzPct, to a different choice drawn uniformly from the other
// candidates and the undervote. Phantom cards are never found.
func Fuzz(cvrs []contest.Cvr, contests []*contest.Contest, fuzzPct float64, rng *rand.Rand) []contest.Cvr {
	choices := make(map[core.ContestID][]core.CandidateID, len(contests))
	for _, c := range contests {
		choices[c.ID] = append(append([]core.CandidateID(nil), c.Candidates...), "")
	}

	mvrs := make([]contest.Cvr, len(cvrs))
	for i, cvr := range cvrs {
		if cvr.Phantom {
			mvrs[i] = cvr.Clone()
			continue
		}
		ids := make([]core.ContestID, 0, len(cvr.Votes))
		for cid := range cvr.Votes {
			ids = append(ids, cid)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

		sel := make(map[core.ContestID]core.CandidateID, len(ids))
		for _, cid := range ids {
			current := core.CandidateID("")
			if votes := cvr.Votes[cid]; len(votes) > 0 {
				current = votes[0]
			}
			sel[cid] = current
			if rng.Float64() >= fuzzPct || len(choices[cid]) < 2 {
				continue
			}
			others := make([]core.CandidateID, 0, len(choices[cid])-1)
			for _, ch := range choices[cid] {
				if ch != current {
					others = append(others, ch)
				}
			}
			sel[cid] = others[rng.Intn(len(others))]
		}
		mvrs[i] = contest.NewCvr(cvr.ID, sel)
	}
	return mvrs
}

// MakePairs zips audited and reported records
func MakePairs(mvrs, cvrs []contest.Cvr) []contest.CvrPair {
	pairs := make([]contest.CvrPair, len(cvrs))
	for i := range cvrs {
		pairs[i] = contest.CvrPair{Mvr: mvrs[i], Cvr: cvrs[i]}
	}
	return pairs
}
