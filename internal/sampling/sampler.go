// Package sampling produces the ordered, without-replacement stream of values a
// risk test consumes, and selects which cards each round must audit.
package sampling

import (
	"math/rand"

	"gorla/domain/assort"
	"gorla/domain/contest"
	"gorla/domain/core"
)

// Sampler yields the values of an assertion in sample order
type Sampler interface {
	Sample() (float64, error)
	MaxSamples() int
	MaxSampleIndexUsed() int
	NSamples() int
	Reset() error
}

// Permutation returns a uniformly random ordering of 0..n-1 drawn from rng
func Permutation(n int, rng *rand.Rand) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// ContestSampler walks a committed card order for one assertion. The order is
// fixed by the published seed, so it can never be reshuffled.
type ContestSampler struct {
	assertion assort.Assertion
	pairs     []contest.CvrPair
	index     []int // positions in pairs of the cards eligible for the contest
	next      int
}

// NewContestSampler filters pairs to the cards containing the contest. Without
// card style every card is eligible.
func NewContestSampler(a assort.Assertion, pairs []contest.CvrPair, hasStyle bool) *ContestSampler {
	index := make([]int, 0, len(pairs))
	for i, p := range pairs {
		if !hasStyle || p.Cvr.HasContest(a.Contest.ID) {
			index = append(index, i)
		}
	}
	return &ContestSampler{assertion: a, pairs: pairs, index: index}
}

// Sample returns the value of the next eligible card
func (s *ContestSampler) Sample() (float64, error) {
	if s.next >= len(s.index) {
		return 0, core.NewExhaustedError(len(s.index))
	}
	pair := s.pairs[s.index[s.next]]
	s.next++
	return s.assertion.Value(pair)
}

// MaxSamples is the number of eligible cards
func (s *ContestSampler) MaxSamples() int { return len(s.index) }

// MaxSampleIndexUsed is how far into the committed order sampling has gone
func (s *ContestSampler) MaxSampleIndexUsed() int {
	if s.next == 0 {
		return 0
	}
	return s.index[s.next-1] + 1
}

// NSamples is the number of values returned so far
func (s *ContestSampler) NSamples() int { return s.next }

// Reset always fails: the committed order is public
func (s *ContestSampler) Reset() error { return core.ErrResetForbidden }
