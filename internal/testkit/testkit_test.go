package testkit

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorla/domain/contest"
	"gorla/domain/core"
	"gorla/domain/round"
	"gorla/domain/stats"
)

func TestGenerateExactTallies(t *testing.T) {
	cfg := ElectionGeneratorConfig{
		NCards: 1000,
		Seed:   1,
		Contests: []ContestSpec{
			TwoCandidateSpec("mayor", .55),
			{ID: "council", Candidates: []core.CandidateID{"a", "b", "c"}, Shares: []float64{.5, .3, .1}, Coverage: .5, Phantoms: 5},
		},
	}
	election, err := NewElectionGenerator(cfg).Generate()
	require.NoError(t, err)
	require.Len(t, election.Contests, 2)
	assert.Len(t, election.Cvrs, 1005)

	mayor := election.Contests[0]
	assert.Equal(t, 550, mayor.Votes["winner"])
	assert.Equal(t, 450, mayor.Votes["loser"])
	assert.Equal(t, []core.CandidateID{"winner"}, mayor.Winners)
	assert.Equal(t, 1000, mayor.Nc)
	require.NoError(t, mayor.Validate())

	council := election.Contests[1]
	assert.Equal(t, 500, council.Ncast)
	assert.Equal(t, 505, council.Nc)
	assert.Equal(t, 5, council.Np)
	assert.Equal(t, 250, council.Votes["a"])
	assert.Equal(t, core.CandidateID("a"), council.Winners[0])
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := NewElectionGenerator(DefaultElectionConfig()).Generate()
	require.NoError(t, err)
	b, err := NewElectionGenerator(DefaultElectionConfig()).Generate()
	require.NoError(t, err)
	assert.Equal(t, a.Cvrs, b.Cvrs)
}

func TestGenerateRejectsBadSpec(t *testing.T) {
	_, err := NewElectionGenerator(ElectionGeneratorConfig{NCards: 10, Contests: []ContestSpec{{ID: "x", Candidates: []core.CandidateID{"a"}}}}).Generate()
	assert.Error(t, err)
	_, err = NewElectionGenerator(ElectionGeneratorConfig{}).Generate()
	assert.Error(t, err)
}

func TestFuzzChangesAboutFuzzPct(t *testing.T) {
	cfg := DefaultElectionConfig()
	cfg.Contests[0].Phantoms = 10
	election, err := NewElectionGenerator(cfg).Generate()
	require.NoError(t, err)

	mvrs := Fuzz(election.Cvrs, election.Contests, .05, rand.New(rand.NewSource(3)))
	require.Len(t, mvrs, len(election.Cvrs))
	changed := 0
	for i, cvr := range election.Cvrs {
		if cvr.Phantom {
			assert.True(t, mvrs[i].Phantom)
			continue
		}
		assert.Equal(t, cvr.ID, mvrs[i].ID)
		if cvr.VoteFor("contest0", "winner") != mvrs[i].VoteFor("contest0", "winner") ||
			cvr.VoteFor("contest0", "loser") != mvrs[i].VoteFor("contest0", "loser") {
			changed++
		}
	}
	assert.InDelta(t, 500, changed, 100)

	none := Fuzz(election.Cvrs, election.Contests, 0, rand.New(rand.NewSource(3)))
	for i, cvr := range election.Cvrs {
		if !cvr.Phantom {
			assert.Equal(t, cvr.Votes, none[i].Votes)
		}
	}
}

func TestInMemoryMvrSource(t *testing.T) {
	cvrs := []contest.Cvr{
		contest.NewCvr("a", map[core.ContestID]core.CandidateID{"mayor": "x"}),
		contest.NewCvr("b", map[core.ContestID]core.CandidateID{"mayor": "y"}),
	}
	src := NewInMemoryMvrSource(MakePairs(cvrs, cvrs))

	pairs, err := src.Pairs(context.Background(), 1, []core.BallotID{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, core.BallotID("b"), pairs[0].Cvr.ID)
	assert.Equal(t, core.BallotID("a"), pairs[1].Mvr.ID)
	assert.Equal(t, 2, src.Requested(1))

	_, err = src.Pairs(context.Background(), 1, []core.BallotID{"zzz"})
	assert.Error(t, err)

	src.Lose("a")
	pairs, err = src.Pairs(context.Background(), 2, []core.BallotID{"a", "b"})
	require.NoError(t, err)
	assert.True(t, pairs[0].Mvr.Phantom)
	assert.Equal(t, core.BallotID("a"), pairs[0].Mvr.ID)
	assert.False(t, pairs[0].Cvr.Phantom)
	assert.False(t, pairs[1].Mvr.Phantom)
}

func TestInMemoryRoundRepository(t *testing.T) {
	repo := NewInMemoryRoundRepository()
	auditID := core.NewAuditID()
	ctx := context.Background()
	for r := 2; r >= 1; r-- {
		res := round.AuditRoundResult{Round: r, Status: stats.StatusInProgress}
		ar := round.AuditRound{Round: r, Contests: []round.ContestRound{{
			ContestID:  "mayor",
			Assertions: []round.AssertionRound{{AssertionID: "mayor/a>b", Result: &res}},
		}}}
		require.NoError(t, repo.SaveRound(ctx, auditID, ar))
	}
	got, err := repo.ListRounds(ctx, auditID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Result.Round)
	assert.Equal(t, 2, got[1].Result.Round)
}

func TestRNGStreamsAreDeterministic(t *testing.T) {
	rng := NewRNGAdapter()
	ctx := context.Background()
	a, _ := rng.Stream(ctx, "mayor", "mayor/a>b", 3, 42)
	b, _ := rng.Stream(ctx, "mayor", "mayor/a>b", 3, 42)
	c, _ := rng.Stream(ctx, "mayor", "mayor/a>b", 4, 42)
	x := a.Int63()
	assert.Equal(t, x, b.Int63())
	assert.NotEqual(t, x, c.Int63())

	s1, _ := rng.SeededStream(ctx, "sample", 7)
	s2, _ := rng.SeededStream(ctx, "sample", 7)
	assert.Equal(t, s1.Uint64(), s2.Uint64())
}
