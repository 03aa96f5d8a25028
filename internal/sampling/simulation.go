package sampling

import (
	"math"
	"math/rand"

	"gorla/domain/assort"
	"gorla/domain/contest"
	"gorla/domain/core"
	"gorla/domain/stats"
)

// valueSimulation is a resettable sampler over a fixed population of values
type valueSimulation struct {
	population []float64
	perm       []int
	rng        *rand.Rand
	next       int
}

func newValueSimulation(population []float64, rng *rand.Rand) *valueSimulation {
	s := &valueSimulation{population: population, rng: rng}
	s.perm = Permutation(len(population), rng)
	return s
}

func (s *valueSimulation) Sample() (float64, error) {
	if s.next >= len(s.perm) {
		return 0, core.NewExhaustedError(len(s.perm))
	}
	x := s.population[s.perm[s.next]]
	s.next++
	return x, nil
}

func (s *valueSimulation) MaxSamples() int         { return len(s.population) }
func (s *valueSimulation) MaxSampleIndexUsed() int { return s.next }
func (s *valueSimulation) NSamples() int           { return s.next }

// Reset draws a fresh permutation
func (s *valueSimulation) Reset() error {
	s.perm = Permutation(len(s.population), s.rng)
	s.next = 0
	return nil
}

// Reseed replaces the random stream and draws a fresh permutation from it
func (s *valueSimulation) Reseed(rng *rand.Rand) {
	s.rng = rng
	_ = s.Reset()
}

// ClcaSimulation is a population of comparison values whose discrepancy counts
// match the given rates.
type ClcaSimulation struct {
	*valueSimulation
	counts [4]int
}

// NewClcaSimulation builds N values on the grid {0, ½, 1, 3/2, 2}·noerror with
// round(N·rate) cards for each kind of discrepancy.
func NewClcaSimulation(noerror float64, n int, rates stats.DiscrepancyRates, rng *rand.Rand) *ClcaSimulation {
	counts := [4]int{}
	for i, r := range rates.Slice() {
		counts[i] = int(math.Round(float64(n) * r))
	}
	values := [4]float64{0, noerror / 2, 1.5 * noerror, 2 * noerror}

	population := make([]float64, 0, n)
	for i, c := range counts {
		for k := 0; k < c && len(population) < n; k++ {
			population = append(population, values[i])
		}
	}
	for len(population) < n {
		population = append(population, noerror)
	}
	return &ClcaSimulation{valueSimulation: newValueSimulation(population, rng), counts: counts}
}

// ErrorCounts are the number of p2o, p1o, p1u and p2u cards in the population
func (s *ClcaSimulation) ErrorCounts() [4]int { return s.counts }

// PollingSimulation is a population of ballots matching a contest's reported tallies
type PollingSimulation struct {
	*valueSimulation
}

// NewPollingSimulation builds Nc assort values: one per reported vote, undervotes
// for the rest of the cast ballots, and phantoms counted for the loser.
func NewPollingSimulation(a assort.Assertion, rng *rand.Rand) *PollingSimulation {
	c := a.Contest
	population := make([]float64, 0, c.Nc)
	add := func(x float64, n int) {
		for i := 0; i < n; i++ {
			population = append(population, x)
		}
	}

	for _, cand := range c.Candidates {
		ballot := contest.NewCvr("sim", map[core.ContestID]core.CandidateID{c.ID: cand})
		add(a.Assorter.Assort(ballot, true), c.Votes[cand])
	}
	under := contest.NewCvr("sim", map[core.ContestID]core.CandidateID{c.ID: ""})
	add(a.Assorter.Assort(under, true), max(0, c.Ncast-c.TotalVotes()))
	add(a.Assorter.Assort(contest.NewPhantom("sim", c.ID), true), c.Np)

	return &PollingSimulation{valueSimulation: newValueSimulation(population, rng)}
}

// PairSimulation replays an assertion over a set of (mvr, cvr) pairs in a fresh
// random order after every Reset.
type PairSimulation struct {
	*valueSimulation
}

// NewPairSimulation evaluates every pair once and samples the values
func NewPairSimulation(a assort.Assertion, pairs []contest.CvrPair, hasStyle bool, rng *rand.Rand) (*PairSimulation, error) {
	population := make([]float64, 0, len(pairs))
	for _, p := range pairs {
		if hasStyle && !p.Cvr.HasContest(a.Contest.ID) {
			continue
		}
		x, err := a.Value(p)
		if err != nil {
			return nil, err
		}
		population = append(population, x)
	}
	return &PairSimulation{valueSimulation: newValueSimulation(population, rng)}, nil
}
