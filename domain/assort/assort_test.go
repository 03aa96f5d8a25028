package assort

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorla/domain/contest"
	"gorla/domain/core"
)

const mayor = core.ContestID("mayor")

func threeWay() *contest.Contest {
	return contest.New(contest.Params{
		ID:         mayor,
		Candidates: []core.CandidateID{"alice", "bob", "carol"},
		Votes:      map[core.CandidateID]int{"alice": 500, "bob": 400, "carol": 50},
		Winners:    []core.CandidateID{"alice"},
		Nc:         1000,
		Ncast:      980,
	})
}

func ballotsByKind() map[string]contest.Cvr {
	return map[string]contest.Cvr{
		"winner":  contest.NewCvr("w", map[core.ContestID]core.CandidateID{mayor: "alice"}),
		"loser":   contest.NewCvr("l", map[core.ContestID]core.CandidateID{mayor: "bob"}),
		"other":   contest.NewCvr("o", map[core.ContestID]core.CandidateID{mayor: "carol"}),
		"under":   contest.NewCvr("u", map[core.ContestID]core.CandidateID{mayor: ""}),
		"phantom": contest.NewPhantom("p", mayor),
	}
}

func TestPluralityAssortDomain(t *testing.T) {
	a := NewPluralityAssorter(threeWay(), "alice", "bob")
	want := map[string]float64{"winner": 1, "loser": 0, "other": 0.5, "under": 0.5, "phantom": 0.5}

	for kind, ballot := range ballotsByKind() {
		assert.Equal(t, want[kind], a.Assort(ballot, false), kind)
	}
	assert.Equal(t, 0.0, a.Assort(contest.NewPhantom("p2", mayor), true), "phantom counts for the loser")
	assert.InDelta(t, 0.55, a.ReportedMean(), 1e-12)
}

func TestSuperMajorityAssortDomain(t *testing.T) {
	c := contest.New(contest.Params{
		ID:          mayor,
		Choice:      contest.ChoiceSuperMajority,
		MinFraction: 0.6,
		Candidates:  []core.CandidateID{"alice", "bob", "carol"},
		Votes:       map[core.CandidateID]int{"alice": 700, "bob": 200, "carol": 50},
		Winners:     []core.CandidateID{"alice"},
		Nc:          1000,
		Ncast:       1000,
	})
	a := NewSuperMajorityAssorter(c, "alice", 0.6)
	upper := 1 / 1.2
	assert.InDelta(t, upper, a.UpperBound(), 1e-12)

	overvote := contest.Cvr{ID: "x", Votes: map[core.ContestID][]core.CandidateID{mayor: {"alice", "bob"}}}
	values := []float64{
		a.Assort(ballotsByKind()["winner"], false),
		a.Assort(ballotsByKind()["loser"], false),
		a.Assort(ballotsByKind()["other"], false),
		a.Assort(ballotsByKind()["under"], false),
		a.Assort(overvote, false),
	}
	assert.Equal(t, []float64{upper, 0, 0, 0.5, 0.5}, values)
	// mean = (700/1.2 + 50*0.5) / 1000
	assert.InDelta(t, (700/1.2+25)/1000, a.ReportedMean(), 1e-12)
	assert.Greater(t, a.ReportedMean(), 0.5)
}

func TestNoerrorIdentity(t *testing.T) {
	c := contest.New(contest.Params{
		ID:         mayor,
		Candidates: []core.CandidateID{"alice", "bob"},
		Votes:      map[core.CandidateID]int{"alice": 550, "bob": 450},
		Winners:    []core.CandidateID{"alice"},
		Nc:         1000,
		Ncast:      1000,
	})
	pa := NewPluralityAssorter(c, "alice", "bob")
	require.InDelta(t, 0.55, pa.ReportedMean(), 1e-12)

	clca := NewClcaAssorter(c, pa, true)
	assert.InDelta(t, 0.1, clca.Margin(), 1e-12)
	assert.InDelta(t, 1/(3-2*0.55), clca.Noerror(), 1e-12)
	assert.InDelta(t, 0.5263, clca.Noerror(), 1e-4)
	assert.InDelta(t, 2*clca.Noerror(), clca.UpperBound(), 1e-12)
}

func TestBassortDomain(t *testing.T) {
	c := threeWay()
	clca := NewClcaAssorter(c, NewPluralityAssorter(c, "alice", "bob"), true)
	a := clca.Noerror()

	ballots := ballotsByKind()
	tests := []struct {
		mvr, cvr string
		want     float64
	}{
		{"winner", "winner", a},
		{"loser", "winner", 0},       // two-vote overstatement
		{"other", "winner", a / 2},   // one-vote overstatement
		{"phantom", "winner", 0},     // missing card counts for the loser
		{"winner", "loser", 2 * a},   // two-vote understatement
		{"other", "loser", 1.5 * a},  // one-vote understatement
		{"winner", "phantom", 1.5 * a},
		{"loser", "phantom", a / 2},
		{"phantom", "phantom", a / 2},
		{"under", "other", a},
	}
	for _, tt := range tests {
		got, err := clca.Bassort(ballots[tt.mvr], ballots[tt.cvr])
		require.NoError(t, err, "%s/%s", tt.mvr, tt.cvr)
		assert.InDelta(t, tt.want, got, 1e-12, "mvr=%s cvr=%s", tt.mvr, tt.cvr)
	}

	for mkind, mvr := range ballots {
		for ckind, cvr := range ballots {
			got, err := clca.Bassort(mvr, cvr)
			require.NoError(t, err)
			assert.True(t, OnBassortGrid(got, a), "mvr=%s cvr=%s -> %v", mkind, ckind, got)
		}
	}
}

func TestBassortStyle(t *testing.T) {
	c := threeWay()
	pa := NewPluralityAssorter(c, "alice", "bob")
	noContest := contest.NewCvr("n", map[core.ContestID]core.CandidateID{"council": "dan"})
	winner := ballotsByKind()["winner"]

	styled := NewClcaAssorter(c, pa, true)
	_, err := styled.Bassort(winner, noContest)
	assert.ErrorIs(t, err, core.ErrMissingContest)

	// audited card lacks the contest: worst case with style
	got, err := styled.Bassort(noContest, winner)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	unstyled := NewClcaAssorter(c, pa, false)
	got, err = unstyled.Bassort(noContest, noContest)
	require.NoError(t, err)
	assert.InDelta(t, unstyled.Noerror(), got, 1e-12)
	got, err = unstyled.Bassort(noContest, winner)
	require.NoError(t, err)
	assert.InDelta(t, unstyled.Noerror()/2, got, 1e-12)
}

func TestMakeAssertions(t *testing.T) {
	c := threeWay()
	assertions := MakeAssertions(c, true, true)
	require.Len(t, assertions, 2)
	assert.Equal(t, "mayor/alice>bob", assertions[0].ID())
	assert.True(t, assertions[0].IsComparison())

	minAssertion, ok := MinMarginAssertion(assertions)
	require.True(t, ok)
	assert.Equal(t, core.CandidateID("bob"), minAssertion.Assorter.Loser())

	polling := MakeAssertions(c, false, true)
	value, err := polling[0].Value(contest.CvrPair{Mvr: contest.NewPhantom("p", mayor)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)
}
