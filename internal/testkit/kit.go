package testkit

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"gorla/domain/contest"
	"gorla/domain/core"
	"gorla/domain/round"
	"gorla/internal/errors"
)

// RNGAdapter implements the RNGPort interface for testing and simulation
type RNGAdapter struct{}

// NewRNGAdapter creates an RNG adapter
func NewRNGAdapter() *RNGAdapter {
	return &RNGAdapter{}
}

// SeededStream creates a deterministic random number generator for a named operation
func (r *RNGAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if name != "" {
		seed = int64(hashString(name)) + seed
	}
	return rand.New(rand.NewSource(seed)), nil
}

// Stream creates a deterministic stream for one estimation trial
func (r *RNGAdapter) Stream(ctx context.Context, contestID, assertionID string, trial int, baseSeed int64) (*rand.Rand, error) {
	// Create deterministic seed by hashing contest + assertion + trial + baseSeed
	seed := baseSeed
	if contestID != "" {
		seed = int64(hashString(contestID)) + seed
	}
	if assertionID != "" {
		seed = int64(hashString(assertionID))*31 + seed
	}
	seed = seed*1000003 + int64(trial)
	return rand.New(rand.NewSource(seed)), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}

// InMemoryMvrSource serves audited records from memory
type InMemoryMvrSource struct {
	pairs    map[core.BallotID]contest.CvrPair
	mu       sync.Mutex
	requests map[int]int
	lost     map[core.BallotID]bool
}

// NewInMemoryMvrSource indexes the pairs by card id
func NewInMemoryMvrSource(pairs []contest.CvrPair) *InMemoryMvrSource {
	index := make(map[core.BallotID]contest.CvrPair, len(pairs))
	for _, p := range pairs {
		index[p.Cvr.ID] = p
	}
	return &InMemoryMvrSource{pairs: index, requests: make(map[int]int), lost: make(map[core.BallotID]bool)}
}

// Lose marks cards whose paper ballots cannot be located. They are returned
// with a phantom mvr.
func (s *InMemoryMvrSource) Lose(ids ...core.BallotID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.lost[id] = true
	}
}

// Pairs returns the requested pairs in the order of ids
func (s *InMemoryMvrSource) Pairs(ctx context.Context, round int, ids []core.BallotID) ([]contest.CvrPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]contest.CvrPair, len(ids))
	for i, id := range ids {
		p, ok := s.pairs[id]
		if !ok {
			return nil, errors.NotFound(fmt.Sprintf("card %s", id))
		}
		if s.lost[id] {
			p.Mvr = contest.NewPhantom(id)
		}
		out[i] = p
	}
	s.requests[round] += len(ids)
	return out, nil
}

// Requested is the number of pairs handed out for a round
func (s *InMemoryMvrSource) Requested(round int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[round]
}

// InMemoryRoundRepository stores round results in memory
type InMemoryRoundRepository struct {
	results map[core.AuditID][]round.AssertionResult
	mu      sync.RWMutex
}

// NewInMemoryRoundRepository creates an empty repository
func NewInMemoryRoundRepository() *InMemoryRoundRepository {
	return &InMemoryRoundRepository{results: make(map[core.AuditID][]round.AssertionResult)}
}

// SaveRound stores the assertion results produced by the round
func (r *InMemoryRoundRepository) SaveRound(ctx context.Context, auditID core.AuditID, ar round.AuditRound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[auditID] = append(r.results[auditID], ar.NewResults()...)
	return nil
}

// ListRounds returns the stored results ordered by round
func (r *InMemoryRoundRepository) ListRounds(ctx context.Context, auditID core.AuditID) ([]round.AssertionResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]round.AssertionResult(nil), r.results[auditID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Result.Round < out[j].Result.Round })
	return out, nil
}
