// Package workflow drives a risk-limiting audit round by round: estimate how
// many cards each contest needs, select them from the committed order, then
// test every assertion on the cumulative sample.
package workflow

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorla/domain/assort"
	"gorla/domain/contest"
	"gorla/domain/core"
	"gorla/domain/round"
	"gorla/domain/stats"
	"gorla/internal"
	"gorla/internal/config"
	"gorla/internal/errors"
	"gorla/internal/estimate"
	"gorla/internal/sampling"
	"gorla/ports"
)

// Params are the inputs of an audit
type Params struct {
	ID         core.AuditID // generated when empty
	Config     *config.AuditConfig
	Contests   []*contest.Contest
	Cvrs       []contest.Cvr // the ballot manifest with reported records, phantoms included
	RNG        ports.RNGPort
	Repository ports.RoundRepository // optional
	Logger     *internal.Logger      // optional
}

// contestState is the fixed setup of one contest
type contestState struct {
	contest     *contest.Contest
	assertions  []assort.Assertion
	setup       stats.Status
	setupErr    error
	cards       int // cards in the manifest the contest may be sampled from
	population  int // N for the risk test
	assertionAt map[string]int
}

// Audit is one audit. The card order is fixed at construction and the history
// only grows.
type Audit struct {
	id         core.AuditID
	cfg        *config.AuditConfig
	contests   []*contestState
	cards      []sampling.Card // in sample number order
	commitment core.SampleCommitment
	estimator  *estimate.Estimator
	repo       ports.RoundRepository
	logger     *internal.Logger

	history    []round.AuditRound
	thresholds sampling.Thresholds
	sampled    map[core.BallotID]bool
	pending    *pendingRound
	complete   bool
}

type pendingRound struct {
	round  round.AuditRound
	ids    []core.BallotID // every sampled card, prior and new, in rank order
	newIDs []core.BallotID
}

// New validates the configuration and contests, assigns every card its sample
// number and commits to the resulting order. Contests that are misformed or
// have too small a margin are decided here and never sampled.
func New(ctx context.Context, p Params) (*Audit, error) {
	if p.Config == nil {
		return nil, core.NewConfigError("config", "required")
	}
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	if p.RNG == nil {
		return nil, core.NewConfigError("rng", "required")
	}
	if len(p.Cvrs) == 0 {
		return nil, core.NewConfigError("cvrs", "empty ballot manifest")
	}
	seen := make(map[core.BallotID]bool, len(p.Cvrs))
	for _, cvr := range p.Cvrs {
		if seen[cvr.ID] {
			return nil, core.NewConfigError("cvrs", "duplicate ballot id "+cvr.ID.String())
		}
		seen[cvr.ID] = true
	}

	logger := p.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	id := p.ID
	if id == "" {
		id = core.NewAuditID()
	}

	rng, err := p.RNG.SeededStream(ctx, "sample", p.Config.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "seed sample order")
	}
	cards := sampling.AssignSampleNumbers(sampling.NewCards(p.Cvrs), rng)

	a := &Audit{
		id:         id,
		cfg:        p.Config,
		cards:      cards,
		commitment: core.ComputeSampleCommitment(p.Config.Seed, sampling.IDs(cards)),
		estimator:  estimate.New(p.Config, p.RNG, logger),
		repo:       p.Repository,
		logger:     logger.With("audit", id.String()),
		thresholds: sampling.Thresholds{},
		sampled:    make(map[core.BallotID]bool),
	}

	ids := make(map[core.ContestID]bool, len(p.Contests))
	for _, c := range p.Contests {
		if ids[c.ID] {
			return nil, core.NewConfigError("contests", "duplicate contest id "+c.ID.String())
		}
		ids[c.ID] = true
		a.contests = append(a.contests, a.setupContest(c))
	}
	return a, nil
}

func (a *Audit) setupContest(c *contest.Contest) *contestState {
	ncards := sampling.ContestCards(a.cards, c.ID, a.cfg.HasStyle)
	cs := &contestState{contest: c, cards: ncards, population: len(a.cards)}
	if a.cfg.HasStyle {
		cs.population = c.Nc
	}

	cs.setup, cs.setupErr = c.SetupStatus()
	if cs.setup == stats.StatusInProgress && a.cfg.HasStyle && ncards > c.Nc {
		cs.setup = stats.StatusContestMisformed
		cs.setupErr = core.NewMisformedError(c.ID, fmt.Sprintf("%d cards contain the contest but Nc is %d", ncards, c.Nc))
	}
	if cs.setup != stats.StatusInProgress {
		a.logger.Warn("contest %s not audited: %s %v", c.ID, cs.setup, cs.setupErr)
		return cs
	}

	cs.assertions = assort.MakeAssertions(c, a.cfg.Type == config.AuditTypeClca, a.cfg.HasStyle)
	cs.assertionAt = make(map[string]int, len(cs.assertions))
	for i, as := range cs.assertions {
		cs.assertionAt[as.ID()] = i
	}
	if minAssertion, ok := assort.MinMarginAssertion(cs.assertions); ok && minAssertion.Margin() < a.cfg.MinMargin {
		cs.setup = stats.StatusMinMargin
		a.logger.Warn("contest %s not audited: margin %.4f below %.4f", c.ID, minAssertion.Margin(), a.cfg.MinMargin)
	}
	return cs
}

// ID is the audit's id
func (a *Audit) ID() core.AuditID { return a.id }

// Commitment is the hash of the seed and the committed card order
func (a *Audit) Commitment() core.SampleCommitment { return a.commitment }

// SampleOrder is the committed card order
func (a *Audit) SampleOrder() []core.BallotID { return sampling.IDs(a.cards) }

// Complete reports whether the audit has ended
func (a *Audit) Complete() bool { return a.complete }

// History returns a copy of every finished round
func (a *Audit) History() []round.AuditRound {
	out := make([]round.AuditRound, len(a.history))
	for i, r := range a.history {
		out[i] = r.Clone()
	}
	return out
}

// Statuses is the latest status of every contest
func (a *Audit) Statuses() map[core.ContestID]stats.Status {
	out := make(map[core.ContestID]stats.Status, len(a.contests))
	for _, cs := range a.contests {
		out[cs.contest.ID] = cs.setup
	}
	if len(a.history) == 0 {
		return out
	}
	for _, cr := range a.history[len(a.history)-1].Contests {
		out[cr.ContestID] = cr.Status
	}
	return out
}

// Run alternates StartRound and RunRound until the audit is complete or the
// configured number of rounds has run
func (a *Audit) Run(ctx context.Context, source ports.MvrSource) ([]round.AuditRound, error) {
	for !a.complete && (a.cfg.MaxRounds <= 0 || len(a.history) < a.cfg.MaxRounds) {
		r, err := a.StartRound(ctx)
		if stderrors.Is(err, core.ErrAuditComplete) {
			break
		}
		if err != nil {
			return a.History(), err
		}
		if _, err := a.RunRound(ctx, r, source); err != nil {
			return a.History(), err
		}
	}
	return a.History(), nil
}

// Report summarises the latest round, one line per contest
func (a *Audit) Report() string {
	if len(a.history) == 0 {
		return fmt.Sprintf("audit %s: no rounds", a.id)
	}
	last := a.history[len(a.history)-1]
	s := fmt.Sprintf("audit %s round %d: %d cards sampled complete=%t\n", a.id, last.Round, last.SampledCount, last.Complete)
	for _, cr := range last.Contests {
		s += fmt.Sprintf("  %s %s est=%d", cr.ContestID, cr.Status, cr.EstSampleSize)
		if cr.Err != nil {
			s += fmt.Sprintf(" error=%v", cr.Err)
		}
		s += "\n"
	}
	return s
}

func (a *Audit) state(id core.ContestID) *contestState {
	for _, cs := range a.contests {
		if cs.contest.ID == id {
			return cs
		}
	}
	return nil
}

func (a *Audit) lastRound() *round.AuditRound {
	if len(a.history) == 0 {
		return nil
	}
	return &a.history[len(a.history)-1]
}
